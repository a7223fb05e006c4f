package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Time-of-day periods used by the daily capture log. A recognition outside
// all three windows carries no period and triggers no daily side effects.
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
	PeriodNone      = ""
)

var currentLocation *time.Location

// Initialize sets the timezone from the given name, falling back to the TZ
// environment variable and finally UTC. Call once at startup.
func Initialize(tzName string) {
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		currentLocation = time.UTC
		return
	}

	log.Infof("Successfully initialized timezone to %s", tzName)
	currentLocation = loc
}

// Now returns the current time in the configured timezone.
func Now() time.Time {
	if currentLocation == nil {
		Initialize("")
	}
	return time.Now().In(currentLocation)
}

// Format formats a time in the configured timezone.
func Format(t time.Time, layout string) string {
	if currentLocation == nil {
		Initialize("")
	}
	return t.In(currentLocation).Format(layout)
}

// DateKey returns the calendar date portion used to key daily capture logs.
func DateKey(t time.Time) string {
	return Format(t, "2006-01-02")
}

// Period classifies a time into the morning/afternoon/evening windows:
// morning 05:00-12:00, afternoon 12:00-17:00, evening 17:00-21:00.
func Period(t time.Time) string {
	if currentLocation == nil {
		Initialize("")
	}
	h := t.In(currentLocation).Hour()
	switch {
	case h >= 5 && h < 12:
		return PeriodMorning
	case h >= 12 && h < 17:
		return PeriodAfternoon
	case h >= 17 && h < 21:
		return PeriodEvening
	default:
		return PeriodNone
	}
}
