// Package notify finds the next occurrence inside the reminder window and
// renders reminder messages.
package notify

import (
	"fmt"
	"time"

	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

// DefaultLead is the reminder window used when none is configured.
const DefaultLead = 30 * time.Minute

// Reminder is one upcoming occurrence.
type Reminder struct {
	Occurrence model.Occurrence
	// Until is the time left between the check and the occurrence start.
	Until time.Duration
}

// Notifier checks a calendar for occurrences starting within Lead.
type Notifier struct {
	Lead time.Duration
}

// New returns a Notifier with the given lead time. A non-positive lead
// selects DefaultLead.
func New(lead time.Duration) *Notifier {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Notifier{Lead: lead}
}

// Check returns the first occurrence starting strictly after now and no
// later than now+Lead, or nil when nothing is due. Malformed series are
// skipped.
func (n *Notifier) Check(now time.Time, series []model.EventSeries) *Reminder {
	res, err := recur.ExpandAll(series, recur.ExpandConfig{RangeStart: now, RangeEnd: now.Add(n.Lead)})
	if err != nil {
		appLog.Error("reminder check failed", err)
		return nil
	}
	for _, inv := range res.Invalid {
		appLog.Warn("reminder check skipped invalid event", "id", inv.SeriesID, "err", inv.Err.Error())
	}

	for _, occ := range res.Occurrences {
		if occ.Start.After(now) {
			return &Reminder{Occurrence: occ, Until: occ.Start.Sub(now)}
		}
	}
	return nil
}

const reminderLayout = "Jan 02, 2006 at 03:04 PM"

// FormatReminder renders the reminder message shown to the user.
func FormatReminder(r Reminder) string {
	value, unit := humanize(int(r.Until / time.Minute))
	if value != 1 {
		unit += "s"
	}
	return fmt.Sprintf("REMINDER: Your next event '%s' is coming soon in %d %s!\n   Scheduled for: %s",
		r.Occurrence.Title, value, unit, r.Occurrence.Start.Format(reminderLayout))
}

// SettingsInfo describes the configured lead time.
func SettingsInfo(lead time.Duration) string {
	value, unit := humanize(int(lead / time.Minute))
	return fmt.Sprintf("Current notification setting: %d %s(s) before event", value, unit)
}

// humanize picks minutes below an hour, hours below a day, days otherwise.
func humanize(minutes int) (int, string) {
	switch {
	case minutes < 60:
		return minutes, "minute"
	case minutes < 1440:
		return minutes / 60, "hour"
	default:
		return minutes / 1440, "day"
	}
}
