package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pcal/internal/conflict"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/notify"
	"pcal/internal/recur"
	"pcal/internal/stats"
	"pcal/internal/view"
)

func (a *app) monthCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Show a month calendar; * marks busy days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().In(a.store.Location())
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be 1-12, got %d", month)
			}
			out, err := view.Month(year, time.Month(month), a.store.List(), view.ParseWeekStart(a.cfg.WeekStart), a.store.Location())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	return cmd
}

func (a *app) weekCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "week",
		Short: "List the occurrences of the next 7 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := a.parseDay("from", from)
			if err != nil {
				return err
			}
			out, err := view.Week(day, a.store.List())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD (default today)")
	return cmd
}

func (a *app) occurrencesCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "occurrences",
		Short: "Expand every event over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := a.parseDay("from", from)
			if err != nil {
				return err
			}
			end := start.AddDate(0, 0, 30)
			if to != "" {
				if end, err = a.parseDay("to", to); err != nil {
					return err
				}
			}
			res, err := recur.ExpandAll(a.store.List(), recur.ExpandConfig{
				RangeStart: start,
				RangeEnd:   end.Add(24*time.Hour - time.Second),
			})
			if err != nil {
				return err
			}
			for _, inv := range res.Invalid {
				appLog.Warn("skipping invalid event", "id", inv.SeriesID, "err", inv.Err.Error())
			}

			out := cmd.OutOrStdout()
			if len(res.Occurrences) == 0 {
				fmt.Fprintln(out, "No occurrences in range.")
				return nil
			}
			for _, o := range res.Occurrences {
				line := fmt.Sprintf("%s - %s  %s (ID %d)", o.Start.Format(model.DisplayLayout), o.End.Format("15:04:05"), o.Title, o.SeriesID)
				if o.Moved {
					line += " [moved from " + o.NaturalStart.Format(model.DisplayLayout) + "]"
				} else if o.Recurring {
					line += " [Recurring]"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD (default from + 30 days)")
	return cmd
}

func (a *app) conflictsCmd() *cobra.Command {
	var start, end string
	var exclude int
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check whether a time slot overlaps existing events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.parseWhen("start", start)
			if err != nil {
				return err
			}
			e, err := a.parseWhen("end", end)
			if err != nil {
				return err
			}
			var ex *int
			if cmd.Flags().Changed("exclude") {
				ex = &exclude
			}
			cs, err := a.detector().Detect(s, e, a.store.List(), ex)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cs) == 0 {
				fmt.Fprintln(out, conflict.Summary(cs))
				return nil
			}
			fmt.Fprintln(out, conflict.FormatWarning(cs))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "slot start (required)")
	cmd.Flags().StringVar(&end, "end", "", "slot end (required)")
	cmd.Flags().IntVar(&exclude, "exclude", 0, "event ID to ignore")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show event statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.store.List()
			now := time.Now().In(a.store.Location())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, stats.Format(stats.Generate(list, now)))
			fmt.Fprintln(out, stats.QuickSummary(list))
			fmt.Fprintf(out, "Upcoming in the next 7 days: %d\n", stats.UpcomingCount(list, now, 7))
			return nil
		},
	}
}

func (a *app) remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Show the next event starting within the reminder window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lead := time.Duration(a.cfg.ReminderMinutes) * time.Minute
			n := notify.New(lead)
			out := cmd.OutOrStdout()
			if r := n.Check(time.Now().In(a.store.Location()), a.store.List()); r != nil {
				fmt.Fprintln(out, notify.FormatReminder(*r))
			} else {
				fmt.Fprintln(out, "No upcoming events within the reminder window.")
			}
			fmt.Fprintln(out, notify.SettingsInfo(n.Lead))
			return nil
		},
	}
}
