// Package window decides when the enrollment window is open.
//
// Every decision is made on calendar dates in a single fixed offset (UTC+1,
// West Africa Time), independent of the host's local zone. Callers pass the
// current instant in explicitly; nothing in this package reads a clock.
package window

import (
	"fmt"
	"time"
)

// Location is the reference offset all window math runs in.
var Location = time.FixedZone("WAT", 60*60)

// Date is a calendar day in Location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes overflowing values the way time.Date does, so
// NewDate(2025, time.February, 29) is March 1st 2025.
func NewDate(year int, month time.Month, day int) Date {
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Date()
	return Date{Year: y, Month: m, Day: d}
}

// DateOf returns the calendar day t falls on in Location.
func DateOf(t time.Time) Date {
	y, m, d := t.In(Location).Date()
	return Date{Year: y, Month: m, Day: d}
}

// Midnight returns the start of the day in Location.
func (d Date) Midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, Location)
}

func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

func (d Date) Before(o Date) bool { return d.ordinal() < o.ordinal() }
func (d Date) After(o Date) bool  { return d.ordinal() > o.ordinal() }

// DaysUntil returns the number of whole days from d to o; negative when o is
// earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.utc().Sub(d.utc()) / (24 * time.Hour))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) ordinal() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// IsLeapYear reports whether year has a February 29th.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysIn returns the number of days in the month.
func DaysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
