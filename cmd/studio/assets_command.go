package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/export"
	"gelap-studio/internal/store"
)

type assetView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	MimeType  string    `json:"mimeType"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
}

func newAssetView(a store.Asset) assetView {
	view := assetView{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Title:     a.Title,
		Prompt:    a.Prompt,
		CreatedAt: a.CreatedAt,
	}
	if img, err := codec.Decode(a.ImageDataURI); err == nil {
		view.MimeType = img.MimeType
		if raw, err := img.Bytes(); err == nil {
			view.Bytes = len(raw)
		}
	}
	return view
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect and manage the gallery",
	}
	cmd.AddCommand(newAssetsListCommand(ctx))
	cmd.AddCommand(newAssetsDeleteCommand(ctx))
	cmd.AddCommand(newAssetsDownloadCommand(ctx))
	return cmd
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List gallery assets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseAssetKind(kindFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				assets, err := a.Store.ListAssets(cmd.Context(), kind)
				if err != nil {
					return err
				}
				views := make([]assetView, 0, len(assets))
				for _, asset := range assets {
					views = append(views, newAssetView(asset))
				}
				if asJSON {
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "Gallery is empty.")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.ID,
						v.Kind,
						v.Title,
						humanize.Bytes(uint64(v.Bytes)),
						humanize.Time(v.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Kind", "Title", "Size", "Created"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Only list generated, upload or logo assets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAssetsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete gallery assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				for _, id := range args {
					asset, err := a.Store.GetAsset(cmd.Context(), id)
					if err != nil {
						return err
					}
					if asset == nil {
						return fmt.Errorf("asset %s: %w", id, store.ErrNotFound)
					}
					if err := a.Store.DeleteAsset(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
				}
				return nil
			})
		},
	}
}

func newAssetsDownloadCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "download <id>...",
		Short: "Write gallery assets to image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				for _, id := range args {
					asset, err := a.Store.GetAsset(cmd.Context(), id)
					if err != nil {
						return err
					}
					if asset == nil {
						return fmt.Errorf("asset %s: %w", id, store.ErrNotFound)
					}
					img, err := codec.Decode(asset.ImageDataURI)
					if err != nil {
						return fmt.Errorf("asset %s: %w", id, err)
					}
					path, n, err := writeImage(outDir, export.AssetFileName(*asset), img)
					if err != nil {
						return fmt.Errorf("asset %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s).\n", path, humanize.Bytes(uint64(n)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write into")
	return cmd
}

// writeImage stores img as dir/name and returns the path and byte count.
func writeImage(dir, name string, img codec.Image) (string, int, error) {
	raw, err := img.Bytes()
	if err != nil {
		return "", 0, err
	}
	if len(raw) == 0 {
		return "", 0, errors.New("image is empty")
	}
	return writeFile(dir, name, raw)
}

func writeFile(dir, name string, data []byte) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, err)
	}
	return path, len(data), nil
}
