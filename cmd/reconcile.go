package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticket-marketplace/internal/services"
)

func newReconcileCmd(bookings *services.BookingService) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [ticket-id...]",
		Short: "Recompute available quantities from active bookings",
		Long:  "Sets each ticket's available quantity to its total minus the quantity held by pending, accepted and paid bookings. Without arguments every ticket is checked.",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			if len(args) == 0 {
				repaired, err := bookings.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "repaired %d ticket(s)\n", len(repaired))
				for _, id := range repaired {
					fmt.Fprintln(c.OutOrStdout(), id)
				}
				return nil
			}

			for _, id := range args {
				changed, err := bookings.Reconcile(ctx, id)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", id, err)
				}
				state := "ok"
				if changed {
					state = "repaired"
				}
				fmt.Fprintf(c.OutOrStdout(), "%s %s\n", id, state)
			}
			return nil
		},
	}
}
