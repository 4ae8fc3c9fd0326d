package window

import "time"

// Window is one enrollment period, both ends inclusive.
type Window struct {
	Opens  Date
	Closes Date
}

func (w Window) Contains(d Date) bool {
	return !d.Before(w.Opens) && !d.After(w.Closes)
}

// Length is the number of days between the opening and closing day.
func (w Window) Length() int {
	return w.Opens.DaysUntil(w.Closes)
}

// Status is the enrollment state as seen on one calendar day.
type Status struct {
	IsOpen        bool
	OpensOn       Date
	ClosesOn      Date
	DaysUntilOpen int
}

// windowOf returns the window that belongs to the given month. February's
// window opens on the 29th in leap years and on March 1st otherwise; every
// other month opens on the 30th. All windows close on the 3rd of the
// following month.
func windowOf(year int, month time.Month) Window {
	ny, nm := nextMonth(year, month)
	closes := Date{Year: ny, Month: nm, Day: 3}

	if month == time.February {
		if IsLeapYear(year) {
			return Window{Opens: Date{Year: year, Month: time.February, Day: 29}, Closes: closes}
		}
		return Window{Opens: Date{Year: year, Month: time.March, Day: 1}, Closes: closes}
	}
	return Window{Opens: Date{Year: year, Month: month, Day: 30}, Closes: closes}
}

// windowOpeningOn returns the window whose first day is open.
func windowOpeningOn(open Date) Window {
	if open.Month == time.March && open.Day == 1 {
		return windowOf(open.Year, time.February)
	}
	return windowOf(open.Year, open.Month)
}

// NextOpenDate returns the first window opening strictly after d.
//
// The month after d's month is resolved against its own year, so January
// 31st 2027 yields March 1st 2027 and January 30th 2028 yields February 29th
// 2028; December rolls into January 30th of the next year.
func NextOpenDate(d Date) Date {
	if w := windowOf(d.Year, d.Month); w.Opens.After(d) {
		return w.Opens
	}
	y, m := nextMonth(d.Year, d.Month)
	return windowOf(y, m).Opens
}

// PreviousOpenDate returns the most recent window opening on or before d.
func PreviousOpenDate(d Date) Date {
	if w := windowOf(d.Year, d.Month); !w.Opens.After(d) {
		return w.Opens
	}
	y, m := prevMonth(d.Year, d.Month)
	return windowOf(y, m).Opens
}

// Containing returns the window d falls in, if any.
func Containing(d Date) (Window, bool) {
	if w := windowOf(d.Year, d.Month); w.Contains(d) {
		return w, true
	}
	y, m := prevMonth(d.Year, d.Month)
	if w := windowOf(y, m); w.Contains(d) {
		return w, true
	}
	return Window{}, false
}

// StatusAt computes the enrollment status for the calendar day d.
func StatusAt(d Date) Status {
	if w, ok := Containing(d); ok {
		return Status{IsOpen: true, OpensOn: w.Opens, ClosesOn: w.Closes}
	}

	w := windowOpeningOn(NextOpenDate(d))
	return Status{
		OpensOn:       w.Opens,
		ClosesOn:      w.Closes,
		DaysUntilOpen: max(0, d.DaysUntil(w.Opens)),
	}
}

// StatusOf computes the enrollment status for the instant now.
func StatusOf(now time.Time) Status {
	return StatusAt(DateOf(now))
}

// IsPurgeDay reports whether d is the last day before a window opens, the
// day non-privileged members are removed from the channel.
func IsPurgeDay(d Date) bool {
	return NextOpenDate(d) == d.AddDays(1)
}

// WindowsIn returns every window that opens during year, in order.
func WindowsIn(year int) []Window {
	windows := make([]Window, 0, 12)
	for m := time.January; m <= time.December; m++ {
		windows = append(windows, windowOf(year, m))
	}
	return windows
}
