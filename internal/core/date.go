package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar day at UTC midnight.
type Date struct {
	time.Time
}

// spreadsheetEpoch is day zero of spreadsheet serial dates.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// fallbackLayouts are tried, in order, after the DD/MMM/YY form. Numeric
// slash dates are month first.
var fallbackLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"1/2/2006",
	"2-Jan-2006",
	"2-Jan-06",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysBetween returns the whole number of days from a to b, negative when b is before a.
func DaysBetween(a, b Date) int {
	return int(math.Round(b.Sub(a.Time).Hours() / 24))
}

// MinDate returns the earlier of a and b.
func MinDate(a, b Date) Date {
	if b.Before(a.Time) {
		return b
	}
	return a
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if b.After(a.Time) {
		return b
	}
	return a
}

// ParseDate reads a date cell. Accepted inputs are time values, spreadsheet serial
// numbers and strings, where the DD/MMM/YY form (05/Jan/24) is tried before the
// other supported layouts. Two-digit years are taken as 20YY.
func ParseDate(v any) (Date, error) {
	switch x := v.(type) {
	case nil:
		return Date{}, fmt.Errorf("empty date")
	case Date:
		return x, nil
	case time.Time:
		if x.IsZero() {
			return Date{}, fmt.Errorf("zero date")
		}
		return DateOf(x), nil
	case float64:
		return fromSerial(x)
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case string:
		return parseDateString(x)
	default:
		return parseDateString(fmt.Sprint(x))
	}
}

func fromSerial(f float64) (Date, error) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Date{}, fmt.Errorf("invalid serial date %v", f)
	}
	return DateOf(spreadsheetEpoch.AddDate(0, 0, int(math.Floor(f)))), nil
}

func parseDateString(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	if d, ok := parseDayMonthYear(s); ok {
		return d, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	return Date{}, fmt.Errorf("unrecognised date %q", s)
}

// parseDayMonthYear handles DD/MMM/YY and DD/MMM/YYYY.
func parseDayMonthYear(s string) (Date, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Date{}, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return Date{}, false
	}
	mt, err := time.Parse("Jan", parts[1])
	if err != nil {
		return Date{}, false
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 0 {
		return Date{}, false
	}
	if len(parts[2]) <= 2 {
		year += 2000
	}
	d := NewDate(year, int(mt.Month()), day)
	if d.Day() != day {
		return Date{}, false
	}
	return d, true
}
