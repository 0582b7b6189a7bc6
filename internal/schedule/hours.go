package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"residence/internal/models"
)

// ViolationKind tells which operating-hours rule a request broke.
type ViolationKind int

const (
	ClosedDay ViolationKind = iota + 1
	BeforeOpening
	AfterClosing
)

// HoursViolation is returned when a requested interval does not fit the
// facility's operating window for the day.
type HoursViolation struct {
	Kind           ViolationKind
	Day            time.Weekday
	OpenTime       string
	CloseTime      string
	RequestedLocal string // HH:MM of the offending bound
}

func (v *HoursViolation) Error() string {
	switch v.Kind {
	case ClosedDay:
		return fmt.Sprintf("Facility is closed on %s", v.Day)
	case BeforeOpening:
		return fmt.Sprintf("Requested start %s is before opening time %s on %s", v.RequestedLocal, v.OpenTime, v.Day)
	case AfterClosing:
		return fmt.Sprintf("Requested end %s is after closing time %s on %s", v.RequestedLocal, v.CloseTime, v.Day)
	}
	return "outside operating hours"
}

// Window renders the configured window, e.g. "09:00 - 18:00".
func (v *HoursViolation) Window() string {
	if v.Kind == ClosedDay {
		return "closed"
	}
	return v.OpenTime + " - " + v.CloseTime
}

// DayOfWeek reads the weekday from the UTC calendar date of t, so the result
// never depends on the host's local zone.
func DayOfWeek(t time.Time) time.Weekday {
	return t.UTC().Weekday()
}

// ShiftToLocal adds offsetMinutes to t in UTC. Hour and minute of the result
// are the caller's wall clock.
func ShiftToLocal(t time.Time, offsetMinutes int) time.Time {
	return t.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
}

// LocalMinutes returns minutes since local midnight for t.
func LocalMinutes(t time.Time, offsetMinutes int) int {
	l := ShiftToLocal(t, offsetMinutes)
	return l.Hour()*60 + l.Minute()
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as end of day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if hh == 24 && mm == 0 {
		return 24 * 60, nil
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hh*60 + mm, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// HoursFor returns the entry configured for day, if any.
func HoursFor(days []models.DayHours, day time.Weekday) (models.DayHours, bool) {
	for _, d := range days {
		if d.Day == int(day) {
			return d, true
		}
	}
	return models.DayHours{}, false
}

// CheckOperatingHours validates [start, end) against the facility's window
// for the UTC weekday of start. Days without an entry are unconstrained.
// A *HoursViolation is returned when the interval does not fit; any other
// error means the stored hours are malformed.
func CheckOperatingHours(days []models.DayHours, start, end time.Time, offsetMinutes int) error {
	day := DayOfWeek(start)
	entry, ok := HoursFor(days, day)
	if !ok {
		return nil
	}
	if entry.IsClosed {
		return &HoursViolation{Kind: ClosedDay, Day: day}
	}

	open, err := ParseClock(entry.OpenTime)
	if err != nil {
		return fmt.Errorf("operating hours for %s: %w", day, err)
	}
	closing, err := ParseClock(entry.CloseTime)
	if err != nil {
		return fmt.Errorf("operating hours for %s: %w", day, err)
	}

	localStart := LocalMinutes(start, offsetMinutes)
	localEnd := LocalMinutes(end, offsetMinutes)

	if localStart < open {
		return &HoursViolation{Kind: BeforeOpening, Day: day, OpenTime: entry.OpenTime, CloseTime: entry.CloseTime, RequestedLocal: FormatClock(localStart)}
	}
	if localEnd > closing {
		return &HoursViolation{Kind: AfterClosing, Day: day, OpenTime: entry.OpenTime, CloseTime: entry.CloseTime, RequestedLocal: FormatClock(localEnd)}
	}
	return nil
}
