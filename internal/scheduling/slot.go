package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// WindowDays is the rolling booking horizon, today included.
	WindowDays = 7

	timeOfDayLayout = "15:04"
	slotValueSep    = "|"
)

// SlotTemplate is the fixed daily cadence every doctor is booked on. The
// grid is the same for every doctor and every day; doctors narrow it with
// per-slot overrides.
var SlotTemplate = []string{"09:00", "11:00", "14:00", "16:00"}

var ErrInvalidSlotValue = errors.New("invalid slot value")

// Slot is one bookable (date, time-of-day) pair, the atomic unit of booking.
type Slot struct {
	Date      time.Time
	TimeOfDay string
}

// Value encodes the slot as "YYYY-MM-DD|HH:MM", the form the UI round-trips.
func (s Slot) Value() string {
	return s.Date.Format(time.DateOnly) + slotValueSep + s.TimeOfDay
}

func (s Slot) Equal(o Slot) bool {
	return s.TimeOfDay == o.TimeOfDay && sameDate(s.Date, o.Date)
}

// ParseSlotValue decodes a "YYYY-MM-DD|HH:MM" value. The date is normalized
// to midnight UTC so parse(format(s)) reproduces s exactly.
func ParseSlotValue(v string) (Slot, error) {
	dateStr, timeStr, ok := strings.Cut(v, slotValueSep)
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlotValue, v)
	}

	d, err := time.ParseInLocation(time.DateOnly, dateStr, time.UTC)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: bad date %q", ErrInvalidSlotValue, dateStr)
	}

	tod, err := time.Parse(timeOfDayLayout, timeStr)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: bad time %q", ErrInvalidSlotValue, timeStr)
	}

	return Slot{Date: d, TimeOfDay: tod.Format(timeOfDayLayout)}, nil
}

// GenerateWindow enumerates the bookable slots for the rolling 7-day window
// starting at today: for each day offset 0..6 in order, every template time
// in order. Pure and deterministic for a given today.
func GenerateWindow(today time.Time) []Slot {
	day := DateOnly(today)

	slots := make([]Slot, 0, WindowDays*len(SlotTemplate))
	for offset := 0; offset < WindowDays; offset++ {
		d := day.AddDate(0, 0, offset)
		for _, tod := range SlotTemplate {
			slots = append(slots, Slot{Date: d, TimeOfDay: tod})
		}
	}
	return slots
}

// InWindow reports whether the slot is a template slot inside the rolling
// window anchored at today. Bookings outside the window are rejected rather
// than silently accepted with arbitrary times.
func InWindow(s Slot, today time.Time) bool {
	if !templateTime(s.TimeOfDay) {
		return false
	}
	day := DateOnly(today)
	d := DateOnly(s.Date)
	if d.Before(day) {
		return false
	}
	return d.Before(day.AddDate(0, 0, WindowDays))
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

func templateTime(tod string) bool {
	for _, t := range SlotTemplate {
		if t == tod {
			return true
		}
	}
	return false
}
