package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/export"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/studio"
)

type productFlags struct {
	style       string
	description string
	ratio       string
	templates   string
	lighting    string
	angle       string
	lens        string
	count       int
	grain       int
	vary        bool
	preserve    bool
	save        bool
	outDir      string
}

func (f productFlags) selection(productPath string) (prompt.ProductSelection, error) {
	product, err := codec.EncodeFile(productPath)
	if err != nil {
		return prompt.ProductSelection{}, fmt.Errorf("product image: %w", err)
	}
	sel := prompt.ProductSelection{
		Product:         product,
		Description:     strings.TrimSpace(f.description),
		AspectRatio:     strings.TrimSpace(f.ratio),
		Count:           min(max(f.count, 1), prompt.MaxProductCount),
		VaryStyles:      f.vary,
		PreserveDetails: f.preserve,
		FilmGrain:       min(max(f.grain, 0), 100),
		Lighting:        strings.TrimSpace(f.lighting),
		Perspective:     strings.TrimSpace(f.angle),
		Lens:            strings.TrimSpace(f.lens),
	}
	sel.ManualOverride = sel.Lighting != "" || sel.Perspective != "" || sel.Lens != ""
	if f.style != "" {
		if sel.Style, err = codec.EncodeFile(f.style); err != nil {
			return prompt.ProductSelection{}, fmt.Errorf("style image: %w", err)
		}
	}
	for _, id := range strings.Split(f.templates, ",") {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			sel.TemplateIDs = append(sel.TemplateIDs, id)
		}
	}
	sel.UseTemplates = len(sel.TemplateIDs) > 0
	return sel, nil
}

func newProductCommand(ctx *commandContext) *cobra.Command {
	var flags productFlags

	cmd := &cobra.Command{
		Use:   "product <image>",
		Short: "Run a product photo batch from a local image",
		Long: "Analyses the product image, renders --count results and writes them to --out.\n" +
			"Interrupting stops the batch after the current image.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := flags.selection(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				if err := a.Config.RequireGemini(); err != nil {
					return err
				}
				return runProduct(cmd, a, sel, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.style, "style", "", "Optional style reference image")
	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "Extra direction for the analysis")
	cmd.Flags().StringVar(&flags.ratio, "ratio", "", "Aspect ratio such as 1:1 or 4:5")
	cmd.Flags().StringVar(&flags.templates, "templates", "", "Comma-separated template ids to cycle through")
	cmd.Flags().StringVar(&flags.lighting, "lighting", "", "Manual lighting override")
	cmd.Flags().StringVar(&flags.angle, "angle", "", "Manual camera angle override")
	cmd.Flags().StringVar(&flags.lens, "lens", "", "Manual lens override")
	cmd.Flags().IntVarP(&flags.count, "count", "n", 1, fmt.Sprintf("Images to render (1-%d)", prompt.MaxProductCount))
	cmd.Flags().IntVar(&flags.grain, "grain", 0, "Film grain 0-100")
	cmd.Flags().BoolVar(&flags.vary, "vary", false, "Vary the style between images")
	cmd.Flags().BoolVar(&flags.preserve, "preserve", false, "Keep product details exact")
	cmd.Flags().BoolVar(&flags.save, "save", false, "Also save every result to the gallery")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "Directory to write into")
	return cmd
}

func runProduct(cmd *cobra.Command, a *app.App, sel prompt.ProductSelection, flags productFlags) error {
	out := cmd.OutOrStdout()

	stop := batch.NewStopToken()
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(out, "Stopping after the current image...")
			stop.Stop()
		case <-finished:
		}
	}()

	// The in-flight request survives an interrupt; the stop token ends the run.
	runCtx := context.WithoutCancel(cmd.Context())

	p := &productProgress{out: out, cooling: -1}
	res, runErr := a.Studio.Product.Generate(runCtx, sel, studio.RunOptions{Stop: stop, OnEvent: p.observe})

	for i, item := range res.Items {
		img, err := codec.Decode(item.ImageDataURI)
		if err != nil {
			return fmt.Errorf("result %d: %w", i+1, err)
		}
		name := fmt.Sprintf("%02d_%s", i+1, export.ProductFileName(img.MimeType, item.CreatedAt))
		path, n, err := writeImage(flags.outDir, name, img)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%s).\n", path, humanize.Bytes(uint64(n)))

		if flags.save {
			asset, err := a.Studio.Product.Save(runCtx, item.ID)
			if err != nil {
				return fmt.Errorf("save result %d: %s", i+1, studio.Describe(err))
			}
			fmt.Fprintf(out, "Saved to gallery as %s.\n", asset.ID)
		}
	}

	if runErr != nil {
		return errors.New(studio.Describe(runErr))
	}
	if p.finished != "" {
		fmt.Fprintln(out, p.finished)
	}
	return nil
}

// productProgress prints one line per step and one per cooldown.
type productProgress struct {
	out      io.Writer
	cooling  int
	finished string
}

func (p *productProgress) observe(ev batch.Event) {
	switch ev.Kind {
	case batch.EventGenerating:
		fmt.Fprintln(p.out, ev.Status())
	case batch.EventCooldown:
		if p.cooling == ev.Index {
			return
		}
		p.cooling = ev.Index
		fmt.Fprintln(p.out, ev.Status())
	case batch.EventFinished:
		p.finished = ev.Status()
	}
}
