// Package reporting builds the weekly feedback summary for admins.
package reporting

import "time"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the Monday-to-Monday week containing now, in now's
// location. Sunday belongs to the week that started six days earlier.
func WeekOf(now time.Time) Window {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d-(weekday-1), 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Previous is the week immediately before w.
func (w Window) Previous() Window {
	return Window{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + " to " + w.End.Format("2006-01-02")
}
