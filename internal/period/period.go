// Package period provides the calendar buckets amounts are spread over.
package period

import (
	"fmt"
	"time"

	"budgetflow/internal/core"
)

// Bucket is an inclusive calendar span.
type Bucket interface {
	Start() core.Date
	End() core.Date
	Label() string
}

// Month is a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d core.Date) Month {
	return Month{Year: d.Year(), Month: time.Month(d.Month())}
}

func (m Month) Start() core.Date { return core.NewDate(m.Year, int(m.Month), 1) }

func (m Month) End() core.Date { return core.NewDate(m.Year, int(m.Month)+1, 0) }

// Label formats the month as Mon-YY, e.g. "Jan-24".
func (m Month) Label() string { return m.Format(DefaultMonthLayout) }

// Format formats the first day of the month with a time layout.
func (m Month) Format(layout string) string { return m.Start().Format(layout) }

// Next returns the following month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// DefaultMonthLayout renders months as "Jan-24".
const DefaultMonthLayout = "Jan-06"

// Quarter is a calendar quarter, numbered 1 to 4.
type Quarter struct {
	Year   int
	Number int
}

// QuarterOf returns the quarter containing d.
func QuarterOf(d core.Date) Quarter {
	return Quarter{Year: d.Year(), Number: (d.Month()-1)/3 + 1}
}

func (q Quarter) Start() core.Date { return core.NewDate(q.Year, (q.Number-1)*3+1, 1) }

func (q Quarter) End() core.Date { return core.NewDate(q.Year, q.Number*3+1, 0) }

// Label formats the quarter as "2024 Q1".
func (q Quarter) Label() string { return fmt.Sprintf("%d Q%d", q.Year, q.Number) }

func (q Quarter) String() string { return q.Label() }

// Next returns the following quarter.
func (q Quarter) Next() Quarter {
	if q.Number == 4 {
		return Quarter{Year: q.Year + 1, Number: 1}
	}
	return Quarter{Year: q.Year, Number: q.Number + 1}
}

// ParseQuarter reads a label produced by Quarter.Label.
func ParseQuarter(s string) (Quarter, error) {
	var q Quarter
	if _, err := fmt.Sscanf(s, "%d Q%d", &q.Year, &q.Number); err != nil {
		return Quarter{}, fmt.Errorf("parse quarter %q: %w", s, err)
	}
	if q.Number < 1 || q.Number > 4 {
		return Quarter{}, fmt.Errorf("parse quarter %q: number out of range", s)
	}
	return q, nil
}

// MonthsBetween lists every month from the month of start to the month of end.
func MonthsBetween(start, end core.Date) []Month {
	if end.Before(start.Time) {
		return nil
	}
	last := MonthOf(end)
	var out []Month
	for m := MonthOf(start); !last.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}

// QuartersBetween lists every quarter intersecting [start, end], ascending.
func QuartersBetween(start, end core.Date) []Quarter {
	if end.Before(start.Time) {
		return nil
	}
	var out []Quarter
	for q := QuarterOf(start); !q.Start().After(end.Time); q = q.Next() {
		out = append(out, q)
	}
	return out
}

// OverlapDays counts the days shared by two inclusive ranges.
func OverlapDays(aStart, aEnd, bStart, bEnd core.Date) int {
	from := core.MaxDate(aStart, bStart)
	to := core.MinDate(aEnd, bEnd)
	n := core.DaysBetween(from, to) + 1
	if n < 0 {
		return 0
	}
	return n
}
