package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchParsesCurrentWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "45.6427", r.URL.Query().Get("latitude"))
		assert.Equal(t, "25.5887", r.URL.Query().Get("longitude"))
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current_weather":{"temperature":21.4,"windspeed":9.7,"weathercode":2,"time":"2026-08-31T09:00"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 45.6427, 25.5887)
	current, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 21.4, current.TemperatureC)
	assert.Equal(t, 9.7, current.WindSpeedKmh)
	assert.Equal(t, 2, current.WeatherCode)
	assert.Equal(t, "partly cloudy", current.Condition)
	assert.Equal(t, "2026-08-31T09:00", current.FetchedAt)
}

func TestFetchServesCachedReading(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"current_weather":{"temperature":18.0,"windspeed":5.0,"weathercode":0,"time":"2026-08-31T09:00"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 45.6427, 25.5887)
	_, err := client.Fetch(context.Background())
	require.NoError(t, err)
	_, err = client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second fetch within the TTL must hit the cache")
}

func TestFetchReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 45.6427, 25.5887)
	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestConditionForCode(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{0, "clear"},
		{2, "partly cloudy"},
		{45, "fog"},
		{53, "drizzle"},
		{63, "rain"},
		{73, "snow"},
		{81, "rain showers"},
		{86, "snow showers"},
		{95, "thunderstorm"},
		{40, "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConditionForCode(tc.code), "code %d", tc.code)
	}
}
