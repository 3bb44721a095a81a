package queue

import (
	"fmt"
	"time"
)

const hourBucketLayout = "2006-01-02T15"

// HourBucketKey returns the UTC calendar date and hour of t as "YYYY-MM-DDTHH".
func HourBucketKey(t time.Time) string {
	return t.UTC().Format(hourBucketLayout)
}

// Boundary is a time of day in UTC at which a user's recurring work rolls over.
type Boundary struct {
	Hour   int
	Minute int
}

// ParseBoundary parses "HH:MM".
func ParseBoundary(s string) (Boundary, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Boundary{}, fmt.Errorf("invalid boundary time %q: %w", s, err)
	}
	return Boundary{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (b Boundary) String() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

// KeyDateForBoundary returns the calendar day the unit of work at now belongs to:
// today once the boundary has passed, otherwise yesterday.
func KeyDateForBoundary(now time.Time, b Boundary) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	boundary := today.Add(time.Duration(b.Hour)*time.Hour + time.Duration(b.Minute)*time.Minute)
	if now.Before(boundary) {
		return today.AddDate(0, 0, -1)
	}
	return today
}
