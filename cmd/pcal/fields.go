package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) fieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Manage additional per-event fields",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set ID NAME VALUE",
			Short: "Set a field on an event",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := a.existingID(args[0])
				if err != nil {
					return err
				}
				if err := a.store.Fields().Set(id, args[1], args[2]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Field %q set on event %d.\n", args[1], id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get ID NAME",
			Short: "Print one field of an event",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := a.existingID(args[0])
				if err != nil {
					return err
				}
				v, ok := a.store.Fields().Get(id, args[1])
				if !ok {
					return fmt.Errorf("event %d has no field %q", id, args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list [ID]",
			Short: "List the fields of an event, or every field name in use",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					names := a.store.Fields().Names()
					if len(names) == 0 {
						fmt.Fprintln(out, "No additional fields")
						return nil
					}
					fmt.Fprintln(out, strings.Join(names, "\n"))
					return nil
				}
				id, err := a.existingID(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, a.store.Fields().Display(id))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm ID NAME",
			Short: "Remove a field from an event",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.store.Fields().Remove(id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Field %q removed from event %d.\n", args[1], id)
				return nil
			},
		},
	)
	return cmd
}

// existingID parses arg and checks the event exists.
func (a *app) existingID(arg string) (int, error) {
	id, err := parseID(arg)
	if err != nil {
		return 0, err
	}
	if _, err := a.store.Get(id); err != nil {
		return 0, err
	}
	return id, nil
}
