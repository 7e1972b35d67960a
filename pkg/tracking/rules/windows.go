package rules

import (
	"fmt"
	"time"
)

// CompositionOrder controls how multiple simultaneously-active time window
// multipliers combine.
type CompositionOrder string

const (
	// ComposeRegistrationOrder multiplies active window multipliers in the
	// order the windows were registered. This is the default.
	ComposeRegistrationOrder CompositionOrder = "registration_order"

	// ComposeMostRestrictive applies only the smallest active multiplier.
	ComposeMostRestrictive CompositionOrder = "most_restrictive"
)

// TimeWindow is a recurring local-clock span with a limit multiplier.
// While the wall clock is inside the span on one of the active weekdays, the
// window's multiplier participates in effective limit composition.
type TimeWindow struct {
	startMin   int // minutes since midnight
	endMin     int
	weekdays   map[time.Weekday]bool
	multiplier float64
}

// NewTimeWindow builds a window from "HH:MM" start/end times (local clock), a
// weekday set, and a multiplier. Spans where end precedes start wrap past
// midnight (22:00-06:00). An empty weekday set means every day.
func NewTimeWindow(start, end string, weekdays []time.Weekday, multiplier float64) (TimeWindow, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: start %q: %v", ErrInvalidWindow, start, err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: end %q: %v", ErrInvalidWindow, end, err)
	}
	if multiplier < 0 {
		return TimeWindow{}, fmt.Errorf("%w: multiplier must be non-negative, got %g", ErrInvalidWindow, multiplier)
	}

	days := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		days[d] = true
	}

	return TimeWindow{
		startMin:   startMin,
		endMin:     endMin,
		weekdays:   days,
		multiplier: multiplier,
	}, nil
}

// Multiplier returns the window's multiplier.
func (w TimeWindow) Multiplier() float64 {
	return w.multiplier
}

// ActiveAt reports whether the window covers the given instant.
func (w TimeWindow) ActiveAt(t time.Time) bool {
	if len(w.weekdays) > 0 && !w.weekdays[t.Weekday()] {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	if w.startMin == w.endMin {
		// Degenerate span covers the whole day.
		return true
	}
	if w.startMin < w.endMin {
		return minute >= w.startMin && minute < w.endMin
	}
	// Wraps past midnight.
	return minute >= w.startMin || minute < w.endMin
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var hour, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &min); err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("clock value out of range: %q", s)
	}
	return hour*60 + min, nil
}
