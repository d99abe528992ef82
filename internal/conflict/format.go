package conflict

import (
	"fmt"
	"strings"

	"pcal/internal/model"
)

const warningLayout = "Jan 02, 2006 at 03:04 PM"

// FormatWarning renders a numbered conflict list for the console. It returns
// "" when there is nothing to report.
func FormatWarning(conflicts []model.ConflictInfo) string {
	if len(conflicts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("SCHEDULING CONFLICT DETECTED\n\n")
	b.WriteString("This event conflicts with existing event(s):\n\n")
	for i, c := range conflicts {
		fmt.Fprintf(&b, "%d. %s\n   Time: %s - %s", i+1, c.Series.Title,
			c.OccurrenceStart.Format(warningLayout), c.OccurrenceEnd.Format(warningLayout))
		if c.Series.IsRecurring() {
			b.WriteString(" [Recurring]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summary is a one-line digest naming at most three conflicting titles.
func Summary(conflicts []model.ConflictInfo) string {
	if len(conflicts) == 0 {
		return "No conflicts"
	}

	const shown = 3
	titles := make([]string, 0, shown)
	for i := 0; i < len(conflicts) && i < shown; i++ {
		titles = append(titles, conflicts[i].Series.Title)
	}

	out := fmt.Sprintf("%d conflict(s): %s", len(conflicts), strings.Join(titles, ", "))
	if extra := len(conflicts) - shown; extra > 0 {
		out += fmt.Sprintf(" and %d more...", extra)
	}
	return out
}
