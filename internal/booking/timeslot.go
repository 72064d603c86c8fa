package booking

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	minutesPerDay = 24 * 60
)

// TimeSlot is a half-open interval [Start, End) in minutes since midnight.
type TimeSlot struct {
	Start int
	End   int
}

// ParseTimeSlot parses "HH:MM-HH:MM", e.g. "18:00-19:30".
func ParseTimeSlot(raw string) (TimeSlot, error) {
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return TimeSlot{}, fmt.Errorf("time slot %q must look like 18:00-19:30", raw)
	}
	start, err := parseClock(startRaw)
	if err != nil {
		return TimeSlot{}, err
	}
	end, err := parseClock(endRaw)
	if err != nil {
		return TimeSlot{}, err
	}
	slot := TimeSlot{Start: start, End: end}
	if err := slot.validate(); err != nil {
		return TimeSlot{}, err
	}
	return slot, nil
}

// SlotFromStart builds a slot from a start time and a duration in minutes.
func SlotFromStart(start string, durationMinutes int) (TimeSlot, error) {
	if durationMinutes <= 0 {
		return TimeSlot{}, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}
	startMin, err := parseClock(start)
	if err != nil {
		return TimeSlot{}, err
	}
	slot := TimeSlot{Start: startMin, End: startMin + durationMinutes}
	if err := slot.validate(); err != nil {
		return TimeSlot{}, err
	}
	return slot, nil
}

func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start < other.End && other.Start < s.End
}

func (s TimeSlot) Duration() int {
	return s.End - s.Start
}

func (s TimeSlot) String() string {
	return formatClock(s.Start) + "-" + formatClock(s.End)
}

func (s TimeSlot) validate() error {
	if s.Start < 0 || s.End > minutesPerDay {
		return fmt.Errorf("time slot %s falls outside the day", s)
	}
	if s.End <= s.Start {
		return fmt.Errorf("time slot %s ends before it starts", s)
	}
	return nil
}

func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates a booking date in YYYY-MM-DD form.
func ParseDate(raw string) (string, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return d.Format(dateLayout), nil
}
