// Package session answers trading-session questions (is the market open,
// how long until the close) for one exchange time zone.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Clock describes one exchange's regular session.
type Clock struct {
	loc      *time.Location
	open     int // minutes after midnight
	close    int
	holidays map[string]bool
}

// New creates a clock for tz with "HH:MM" open and close times. A nil
// holidays slice selects the built-in exchange calendar.
func New(tz, open, close string, holidays []string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session: time zone %q: %w", tz, err)
	}
	o, err := parseHM(open)
	if err != nil {
		return nil, err
	}
	c, err := parseHM(close)
	if err != nil {
		return nil, err
	}
	if c <= o {
		return nil, fmt.Errorf("session: close %s is not after open %s", close, open)
	}
	if holidays == nil {
		holidays = nyseHolidays2026
	}
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("session: holiday %q: %w", h, err)
		}
		set[h] = true
	}
	return &Clock{loc: loc, open: o, close: c, holidays: set}, nil
}

func parseHM(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("session: time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the exchange time zone.
func (c *Clock) Location() *time.Location { return c.loc }

// IsHoliday reports whether t's exchange date is a holiday.
func (c *Clock) IsHoliday(t time.Time) bool {
	return c.holidays[t.In(c.loc).Format("2006-01-02")]
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Clock) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	wd := local.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !c.IsHoliday(local)
}

// IsOpen reports whether t falls inside the regular session.
func (c *Clock) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= c.open && hm < c.close
}

func (c *Clock) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, c.loc)
}

// TodayClose returns the close on t's exchange date.
func (c *Clock) TodayClose(t time.Time) time.Time {
	return c.at(t.In(c.loc), c.close)
}

// UntilClose returns the time left in the session, or 0 when it is closed.
func (c *Clock) UntilClose(t time.Time) time.Duration {
	if !c.IsOpen(t) {
		return 0
	}
	return c.TodayClose(t).Sub(t)
}

// NextOpen returns the next session open at or after t.
func (c *Clock) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	if today := c.at(local, c.open); local.Before(today) && c.IsTradingDay(local) {
		return today
	}
	d := local.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends plus holidays never span more
		if c.IsTradingDay(d) {
			return c.at(d, c.open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return c.at(local.AddDate(0, 0, 1), c.open)
}

// Status returns a human-readable session status.
func (c *Clock) Status(t time.Time) string {
	if c.IsOpen(t) {
		return fmt.Sprintf("session open, closes in %s", fmtDur(c.UntilClose(t)))
	}
	next := c.NextOpen(t)
	return fmt.Sprintf("session closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
