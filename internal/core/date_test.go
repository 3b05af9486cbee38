package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   any
		want Date
		ok   bool
	}{
		{"05/Jan/24", NewDate(2024, 1, 5), true},
		{"5/feb/24", NewDate(2024, 2, 5), true},
		{"31/Dec/2023", NewDate(2023, 12, 31), true},
		{"2024-03-15", NewDate(2024, 3, 15), true},
		{"2024-03-15T10:30:00Z", NewDate(2024, 3, 15), true},
		{"15 Mar 2024", NewDate(2024, 3, 15), true},
		{"Mar 15, 2024", NewDate(2024, 3, 15), true},
		{"03/15/2024", NewDate(2024, 3, 15), true},
		{"05/03/2024", NewDate(2024, 5, 3), true},
		{"5/3/2024", NewDate(2024, 5, 3), true},
		{"15/03/2024", Date{}, false},
		{float64(45292), NewDate(2024, 1, 1), true},
		{"45292", NewDate(2024, 1, 1), true},
		{time.Date(2024, 6, 30, 13, 0, 0, 0, time.UTC), NewDate(2024, 6, 30), true},
		{"31/Feb/24", Date{}, false},
		{"", Date{}, false},
		{nil, Date{}, false},
		{"next tuesday", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want.Time) {
				t.Fatalf("%v: expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%v: expected error, got %s", tc.in, got)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		a, b Date
		want int
	}{
		{NewDate(2024, 1, 1), NewDate(2024, 1, 1), 0},
		{NewDate(2024, 1, 15), NewDate(2024, 2, 14), 30},
		{NewDate(2024, 2, 1), NewDate(2024, 3, 1), 29},
		{NewDate(2024, 3, 1), NewDate(2024, 2, 1), -29},
	}
	for _, tc := range cases {
		if got := DaysBetween(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s..%s: expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestMinMaxDate(t *testing.T) {
	a, b := NewDate(2024, 1, 1), NewDate(2024, 5, 1)
	if !MinDate(a, b).Equal(a.Time) || !MinDate(b, a).Equal(a.Time) {
		t.Fatalf("MinDate wrong")
	}
	if !MaxDate(a, b).Equal(b.Time) || !MaxDate(b, a).Equal(b.Time) {
		t.Fatalf("MaxDate wrong")
	}
}
