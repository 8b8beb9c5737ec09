package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
)

type usageView struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show today's generation quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				snap, err := a.Tracker.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				view := usageView{Date: snap.Date(), Used: snap.Used, Limit: snap.Limit, Remaining: snap.Remaining()}
				if asJSON {
					return writeJSON(cmd, view)
				}

				out := cmd.OutOrStdout()
				rows := [][]string{{
					view.Date,
					strconv.Itoa(view.Used),
					strconv.Itoa(view.Limit),
					strconv.Itoa(view.Remaining),
				}}
				fmt.Fprintln(out, renderTable(out, []string{"Date", "Used", "Limit", "Remaining"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
