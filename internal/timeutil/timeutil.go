// Package timeutil resolves wall-clock questions in a user's timezone.
package timeutil

import (
	"fmt"
	"time"
)

// NowIn returns the current time in the named IANA timezone.
func NowIn(timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return time.Now().In(loc), nil
}

// CurrentEdition picks the edition whose scheduled hour is closest to the
// local hour. Ties go to the evening edition.
func CurrentEdition(localNow time.Time, morningHour, eveningHour int) string {
	hour := localNow.Hour()
	morningDist := abs(hour - morningHour)
	eveningDist := abs(hour - eveningHour)
	if morningDist < eveningDist {
		return "morning"
	}
	return "evening"
}

// LocalMidnight returns the start of the day containing t, in t's location.
func LocalMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
