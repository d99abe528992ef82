package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pcal/internal/conflict"
	"pcal/internal/model"
	"pcal/internal/store"
)

var errConflict = errors.New("event not saved because of conflicts (use --force to save anyway)")

func (a *app) detector() *conflict.Detector {
	return conflict.New(a.cfg.ConflictPaddingDays)
}

// checkConflicts prints the conflict warning and returns errConflict unless
// force is set.
func (a *app) checkConflicts(w io.Writer, start, end time.Time, exclude *int, force bool) error {
	cs, err := a.detector().Detect(start, end, a.store.List(), exclude)
	if err != nil {
		return err
	}
	if !conflict.ShouldPrevent(cs) {
		return nil
	}
	fmt.Fprintln(w, conflict.FormatWarning(cs))
	if force {
		fmt.Fprintln(w, "Saving anyway (--force).")
		return nil
	}
	return errConflict
}

func printSeries(w io.Writer, st *store.Store, list []model.EventSeries) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}
	for _, s := range list {
		fmt.Fprintln(w, s.String())
		if f := st.Fields(); f != nil && f.Has(s.ID) {
			for _, line := range strings.Split(f.Display(s.ID), "\n") {
				fmt.Fprintln(w, "    "+line)
			}
		}
		fmt.Fprintln(w)
	}
}

func (a *app) listCmd() *cobra.Command {
	var title, description, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list []model.EventSeries
			switch {
			case date != "":
				day, err := a.parseDay("date", date)
				if err != nil {
					return err
				}
				if list, err = a.store.SearchByDate(day); err != nil {
					return err
				}
			case title != "":
				list = a.store.SearchByTitle(title)
			case description != "":
				list = a.store.SearchByDescription(description)
			default:
				list = a.store.List()
			}
			printSeries(cmd.OutOrStdout(), a.store, list)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "match titles containing this keyword")
	cmd.Flags().StringVar(&description, "description", "", "match descriptions containing this keyword")
	cmd.Flags().StringVar(&date, "date", "", "events with an occurrence on YYYY-MM-DD")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var (
		title, description, start, end string
		freq, until                    string
		interval, count                int
		force                          bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a single or recurring event",
		Example: `  pcal add --title "Weekly Sync" --start "2025-12-01 10:00:00" --end "2025-12-01 11:00:00" \
      --freq weekly --until "2025-12-31 23:59:00"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			s := model.EventSeries{Title: title, Description: description, Interval: interval}

			var err error
			if s.Start, err = a.parseWhen("start", start); err != nil {
				return err
			}
			if s.End, err = a.parseWhen("end", end); err != nil {
				return err
			}
			if s.Frequency, err = model.ParseFrequency(freq); err != nil {
				return err
			}
			if until != "" {
				t, err := a.parseWhen("until", until)
				if err != nil {
					return err
				}
				s.RecurrenceEnd = &t
			}
			if cmd.Flags().Changed("count") {
				n := count
				s.MaxOccurrences = &n
			}
			if err := store.Validate(&s); err != nil {
				return err
			}

			if err := a.checkConflicts(out, s.Start, s.End, nil, force); err != nil {
				return err
			}
			added, err := a.store.Add(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Event added with ID %d.\n", added.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "event title (required)")
	cmd.Flags().StringVar(&description, "description", "", "event description")
	cmd.Flags().StringVar(&start, "start", "", `start, "YYYY-MM-DD HH:MM:SS" (required)`)
	cmd.Flags().StringVar(&end, "end", "", `end, "YYYY-MM-DD HH:MM:SS" (required)`)
	cmd.Flags().StringVar(&freq, "freq", "none", "none, daily, weekly or monthly")
	cmd.Flags().IntVar(&interval, "interval", 1, "repeat every N periods")
	cmd.Flags().StringVar(&until, "until", "", "last possible occurrence start (required when recurring)")
	cmd.Flags().IntVar(&count, "count", 0, "maximum number of occurrences")
	cmd.Flags().BoolVar(&force, "force", false, "save even when the event conflicts")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var (
		title, description, start, end string
		force                          bool
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change title, description or time of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cur, err := a.store.Get(id)
			if err != nil {
				return err
			}

			var u store.Update
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("description") {
				u.Description = &description
			}
			newStart, newEnd := cur.Start, cur.End
			if start != "" {
				if newStart, err = a.parseWhen("start", start); err != nil {
					return err
				}
				u.Start = &newStart
			}
			if end != "" {
				if newEnd, err = a.parseWhen("end", end); err != nil {
					return err
				}
				u.End = &newEnd
			}

			if u.Start != nil || u.End != nil {
				if err := a.checkConflicts(out, newStart, newEnd, &id, force); err != nil {
					return err
				}
			}
			if _, err := a.store.Update(id, u); err != nil {
				return err
			}
			fmt.Fprintf(out, "Event %d updated.\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title (empty keeps the current one)")
	cmd.Flags().StringVar(&description, "description", "", "new description (empty keeps the current one)")
	cmd.Flags().StringVar(&start, "start", "", "new start")
	cmd.Flags().StringVar(&end, "end", "", "new end")
	cmd.Flags().BoolVar(&force, "force", false, "save even when the event conflicts")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event series and its additional fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %d deleted.\n", id)
			return nil
		},
	}
}

func (a *app) skipCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "skip ID",
		Short: "Remove one occurrence of a recurring event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			natural, err := a.parseWhen("date", date)
			if err != nil {
				return err
			}
			if _, err := a.store.DeleteOccurrence(id, natural); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Occurrence on %s of event %d removed.\n", natural.Format(model.DisplayLayout), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "natural start of the occurrence (required)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (a *app) moveCmd() *cobra.Command {
	var date, to string
	var force bool
	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Reschedule one occurrence of a recurring event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			natural, err := a.parseWhen("date", date)
			if err != nil {
				return err
			}
			newStart, err := a.parseWhen("to", to)
			if err != nil {
				return err
			}
			cur, err := a.store.Get(id)
			if err != nil {
				return err
			}
			if err := a.checkConflicts(out, newStart, newStart.Add(cur.Duration()), &id, force); err != nil {
				return err
			}
			if _, err := a.store.MoveOccurrence(id, natural, newStart); err != nil {
				return err
			}
			fmt.Fprintf(out, "Occurrence of event %d moved to %s.\n", id, newStart.Format(model.DisplayLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "natural start of the occurrence (required)")
	cmd.Flags().StringVar(&to, "to", "", "new start (required)")
	cmd.Flags().BoolVar(&force, "force", false, "move even when the new slot conflicts")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
