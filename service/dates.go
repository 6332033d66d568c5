package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	displayDateLayout = "02/01/2006"
	inputDateLayout   = "2006-01-02"
	timestampLayout   = "02/01/2006 15:04:05"
)

var (
	displayDatePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	vizDatePattern     = regexp.MustCompile(`^Date\((\d{4}),\s*(\d{1,2}),\s*(\d{1,2})(?:,[\d,\s]*)?\)$`)
)

// sheetZone is the zone the sheet's dates are read and written in
var sheetZone atomic.Pointer[time.Location]

// SetTimezone sets the zone of the sheet's dates, e.g. "Asia/Kolkata".
// Instants such as UTC ISO strings are rendered as dates in that zone and
// completion timestamps use its wall clock. Empty means the server's zone.
func SetTimezone(name string) error {
	if name == "" {
		sheetZone.Store(time.Local)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	sheetZone.Store(loc)
	return nil
}

func zone() *time.Location {
	if loc := sheetZone.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// parse layouts tried in order after the display form and Date(...) literal
var dateLayouts = []string{
	inputDateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	timestampLayout,
	"2/1/2006 15:04:05",
	"2/1/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// FormatDisplayDate renders a date-like cell as DD/MM/YYYY. Values already
// in that form and values that cannot be parsed are returned unchanged.
func FormatDisplayDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" || displayDatePattern.MatchString(value) {
		return raw
	}
	t, ok := parseDate(value)
	if !ok {
		return raw
	}
	return t.Format(displayDateLayout)
}

func parseDate(value string) (time.Time, bool) {
	if m := vizDatePattern.FindStringSubmatch(value); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		// month is zero-based in the visualization literal
		t := time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, zone())
		if t.Month() != time.Month(month+1) || t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, zone()); err == nil {
			if layout == time.RFC3339Nano {
				t = t.In(zone())
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ToInputDate converts a DD/MM/YYYY display date to the YYYY-MM-DD form used
// by date inputs. Values in any other form are returned unchanged.
func ToInputDate(display string) string {
	t, err := time.ParseInLocation(displayDateLayout, strings.TrimSpace(display), zone())
	if err != nil {
		return display
	}
	return t.Format(inputDateLayout)
}

// FromInputDate converts a YYYY-MM-DD input date to DD/MM/YYYY for writing
// back to the sheet. Other values pass through FormatDisplayDate.
func FromInputDate(input string) string {
	t, err := time.ParseInLocation(inputDateLayout, strings.TrimSpace(input), zone())
	if err != nil {
		return FormatDisplayDate(input)
	}
	return t.Format(displayDateLayout)
}

// Timestamp renders t as DD/MM/YYYY HH:MM:SS on the sheet's clock.
func Timestamp(t time.Time) string {
	return t.In(zone()).Format(timestampLayout)
}
