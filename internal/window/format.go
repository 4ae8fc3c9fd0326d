package window

import "fmt"

// Ordinal renders a day of month with its English suffix: 1st, 2nd, 3rd,
// 4th..20th, 21st and so on.
func Ordinal(day int) string {
	if day%100 > 3 && day%100 < 21 {
		return fmt.Sprintf("%dth", day)
	}
	switch day % 10 {
	case 1:
		return fmt.Sprintf("%dst", day)
	case 2:
		return fmt.Sprintf("%dnd", day)
	case 3:
		return fmt.Sprintf("%drd", day)
	default:
		return fmt.Sprintf("%dth", day)
	}
}

// Label renders the date for end users, e.g. "30th of April".
func (d Date) Label() string {
	return Ordinal(d.Day) + " of " + d.Month.String()
}
