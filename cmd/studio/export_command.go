package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export studio work to files",
	}
	cmd.AddCommand(newExportPackCommand(ctx))
	return cmd
}

func newExportPackCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Write the saved character workspace as a zip pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				restored, err := a.Studio.Character.Restore(cmd.Context())
				if err != nil {
					return err
				}
				if !restored {
					return errors.New("no saved character workspace")
				}

				var buf bytes.Buffer
				name, err := a.Studio.Character.ExportZip(&buf)
				if err != nil {
					return fmt.Errorf("export pack: %w", err)
				}
				path, n, err := writeFile(outDir, name, buf.Bytes())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d shots, %s).\n",
					path, len(a.Studio.Character.Workspace().Items), humanize.Bytes(uint64(n)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write into")
	return cmd
}
