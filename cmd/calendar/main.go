// calendar prints the enrollment windows and purge days for a year.
// Run: go run ./cmd/calendar -year 2026
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/window"
)

func main() {
	year := flag.Int("year", time.Now().In(window.Location).Year(), "calendar year")
	flag.Parse()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PURGE\tOPENS\tCLOSES\tDAYS")
	for _, win := range window.WindowsIn(*year) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			win.Opens.AddDays(-1),
			win.Opens.Label(),
			win.Closes.Label(),
			win.Length()+1,
		)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	st := window.StatusOf(time.Now())
	if st.IsOpen {
		fmt.Printf("\nEnrollment is open until %s.\n", st.ClosesOn.Label())
	} else {
		fmt.Printf("\nNext window opens %s (%d days).\n", st.OpensOn.Label(), st.DaysUntilOpen)
	}
}
