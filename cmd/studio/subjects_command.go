package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
	"gelap-studio/internal/studio"
)

func newSubjectsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Inspect Hire Model subjects",
	}
	cmd.AddCommand(newSubjectsListCommand(ctx))
	cmd.AddCommand(newSubjectsDeleteCommand(ctx))
	return cmd
}

func newSubjectsListCommand(ctx *commandContext) *cobra.Command {
	var customOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List custom subjects followed by catalog models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				subjects, err := a.Studio.HireModel.Subjects(cmd.Context())
				if err != nil {
					return err
				}
				if customOnly {
					filtered := subjects[:0]
					for _, s := range subjects {
						if s.Custom {
							filtered = append(filtered, s)
						}
					}
					subjects = filtered
				}
				if asJSON {
					return writeJSON(cmd, subjectViews(subjects))
				}

				out := cmd.OutOrStdout()
				if len(subjects) == 0 {
					fmt.Fprintln(out, "No subjects.")
					return nil
				}
				rows := make([][]string, 0, len(subjects))
				for _, s := range subjects {
					rows = append(rows, []string{s.ID, s.Name, yesNo(s.Custom), s.Description})
				}
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Name", "Custom", "Description"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&customOnly, "custom", false, "Only list saved and uploaded subjects")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type subjectView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Custom      bool   `json:"custom"`
}

func subjectViews(subjects []studio.Subject) []subjectView {
	out := make([]subjectView, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, subjectView{ID: s.ID, Name: s.Name, Description: s.Description, Custom: s.Custom})
	}
	return out
}

func newSubjectsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a custom subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				if _, err := a.Studio.HireModel.DeleteSubject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}
