package core

import (
	"fmt"
	"time"
)

const dayKeyLayout = "2006-01-02"

// Calendar buckets instants into business days in one fixed time zone. The same zone
// name is handed to Postgres so date_key columns written by the store agree with Go.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the IANA zone name. There is no UTC fallback.
func NewCalendar(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load business time zone %q: %w", zone, err)
	}
	return &Calendar{loc: loc}, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Zone is the IANA name passed to SQL as `now() AT TIME ZONE $n`.
func (c *Calendar) Zone() string { return c.loc.String() }

// DateKey returns the local calendar day of t as YYYY-MM-DD.
func (c *Calendar) DateKey(t time.Time) string {
	return t.In(c.loc).Format(dayKeyLayout)
}

func (c *Calendar) Today() string {
	return c.DateKey(time.Now())
}

// DayBounds returns [start, end) of the local day. The span is not always 24h
// across DST changes.
func (c *Calendar) DayBounds(dayKey string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dayKeyLayout, dayKey, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalidInput("day_bounds", fmt.Sprintf("day key %q is not YYYY-MM-DD", dayKey))
	}
	return start, start.AddDate(0, 0, 1), nil
}

// RangeBounds spans from the start of fromKey to the end of toKey, inclusive of both days.
func (c *Calendar) RangeBounds(fromKey, toKey string) (time.Time, time.Time, error) {
	from, _, err := c.DayBounds(fromKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, to, err := c.DayBounds(toKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, invalidInput("range_bounds", fmt.Sprintf("range %s..%s is empty", fromKey, toKey))
	}
	return from, to, nil
}
