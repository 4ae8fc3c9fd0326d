package window_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/window"
)

func TestOrdinal(t *testing.T) {
	cases := map[int]string{
		1:  "1st",
		2:  "2nd",
		3:  "3rd",
		4:  "4th",
		11: "11th",
		12: "12th",
		13: "13th",
		20: "20th",
		21: "21st",
		22: "22nd",
		23: "23rd",
		29: "29th",
		30: "30th",
		31: "31st",
	}
	for day, want := range cases {
		if got := window.Ordinal(day); got != want {
			t.Errorf("Ordinal(%d) = %q, want %q", day, got, want)
		}
	}
}

func TestDateLabel(t *testing.T) {
	got := window.Date{Year: 2028, Month: time.February, Day: 29}.Label()
	if got != "29th of February" {
		t.Errorf("Label() = %q", got)
	}
}
