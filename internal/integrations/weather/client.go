// Package weather fetches the current outdoor conditions from the
// Open-Meteo API for display alongside greetings.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LakePipiCAKA/self-discovery/config"

	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public Open-Meteo endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Current is a simplified current-weather reading.
type Current struct {
	TemperatureC float64 `json:"temperature_c"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
	WeatherCode  int     `json:"weather_code"`
	Condition    string  `json:"condition"`
	FetchedAt    string  `json:"fetched_at"`
}

// apiResponse mirrors the fields we consume from Open-Meteo.
type apiResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
}

// Client queries Open-Meteo for a fixed location and caches the last
// successful reading for a short interval.
type Client struct {
	baseURL    string
	lat, lon   float64
	httpClient *http.Client

	cached   *Current
	cachedAt time.Time
	ttl      time.Duration
}

// NewClient builds a client for the configured coordinates.
func NewClient(cfg config.WeatherConfig) *Client {
	ttl := time.Duration(cfg.RefreshMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		baseURL: DefaultBaseURL,
		lat:     cfg.DefaultLat,
		lon:     cfg.DefaultLon,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		ttl: ttl,
	}
}

// NewClientWithBaseURL is used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string, lat, lon float64) *Client {
	c := NewClient(config.WeatherConfig{DefaultLat: lat, DefaultLon: lon})
	c.baseURL = baseURL
	return c
}

// Fetch returns the current weather, serving a cached reading when fresh
// enough.
func (c *Client) Fetch(ctx context.Context) (*Current, error) {
	if c.cached != nil && time.Since(c.cachedAt) < c.ttl {
		return c.cached, nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(c.lon, 'f', 4, 64))
	q.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach weather service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	current := &Current{
		TemperatureC: apiResp.CurrentWeather.Temperature,
		WindSpeedKmh: apiResp.CurrentWeather.WindSpeed,
		WeatherCode:  apiResp.CurrentWeather.WeatherCode,
		Condition:    ConditionForCode(apiResp.CurrentWeather.WeatherCode),
		FetchedAt:    apiResp.CurrentWeather.Time,
	}
	c.cached = current
	c.cachedAt = time.Now()
	log.Debugf("Weather updated: %.1f°C, %s", current.TemperatureC, current.Condition)
	return current, nil
}

// ConditionForCode maps WMO weather codes to display strings.
func ConditionForCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
