package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/pipeline"
	"github.com/matzehuels/keyforge/pkg/preview"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/template"
)

type previewOpts struct {
	output   string
	font     string
	machine  string
	face     string
	scale    string
	overflow string
	size     float64
	offsetX  float64
	offsetY  float64
	pixels   int
}

func (c *CLI) previewCommand() *cobra.Command {
	opts := previewOpts{pixels: preview.DefaultSize}

	cmd := &cobra.Command{
		Use:   "preview <text>",
		Short: "Render a legend on the keycap face as PNG",
		Long: `Render how a legend sits on the keycap face, viewed from above, without
building any geometry. Useful for checking size and offsets before a batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreview(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default <legend>.png)")
	cmd.Flags().StringVarP(&opts.font, "font", "f", "", "font: built-in name, stored file name or URL")
	cmd.Flags().StringVarP(&opts.machine, "machine", "m", "", "keycap variant")
	cmd.Flags().StringVar(&opts.face, "face", string(solid.FaceTop), "top or bottom")
	cmd.Flags().StringVar(&opts.scale, "scale", "", "size refers to cap-height (default) or em")
	cmd.Flags().StringVar(&opts.overflow, "overflow", "", "shrink (default) or clip legends larger than the face")
	cmd.Flags().Float64Var(&opts.size, "size", 0, "legend size in mm")
	cmd.Flags().Float64Var(&opts.offsetX, "offset-x", 0, "horizontal offset in mm")
	cmd.Flags().Float64Var(&opts.offsetY, "offset-y", 0, "vertical offset in mm")
	cmd.Flags().IntVar(&opts.pixels, "px", opts.pixels, "image size in pixels")

	return cmd
}

func (c *CLI) runPreview(ctx context.Context, text string, opts *previewOpts) error {
	cfg, svc, err := c.openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	if err := errors.ValidateKeycapText(text); err != nil {
		return err
	}
	size := cfg.Defaults.SizeMm
	if opts.size != 0 {
		size = opts.size
	}
	b := svc.Runner.Bounds
	if err := errors.ValidateRange("size", size, b.SizeMinMm, b.SizeMaxMm); err != nil {
		return err
	}
	face := solid.Face(opts.face)
	if !solid.ValidFaces[face] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid face: %q", opts.face)
	}
	fontID := cfg.Font
	if opts.font != "" {
		fontID = opts.font
	}
	machine := template.Machine(cfg.Machine)
	if opts.machine != "" {
		machine = template.Machine(opts.machine)
	}

	font, err := svc.Runner.LoadFont(ctx, fontID)
	if err != nil {
		return err
	}
	tpl, err := svc.Runner.LoadTemplate(machine)
	if err != nil {
		return err
	}
	center, err := tpl.FaceCenter(face)
	if err != nil {
		return err
	}
	bounds, err := tpl.FaceBounds(face)
	if err != nil {
		return err
	}
	region, err := tpl.FaceRegion(face)
	if err != nil {
		return err
	}
	lay, err := layout.Layout(font, text, layout.Options{
		SizeMm:    size,
		OffsetXMm: opts.offsetX,
		OffsetYMm: opts.offsetY,
		Center:    center,
		Scale:     layout.ScaleMode(opts.scale),
		Fit:       region,
		Overflow:  layout.Overflow(opts.overflow),
	})
	if err != nil {
		return err
	}

	path := opts.output
	if path == "" {
		path = pipeline.SanitizeText(text) + ".png"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := preview.PNG(f, lay.Shape, preview.Options{Size: opts.pixels, Face: bounds}); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	printSuccess("Rendered %s", StyleHighlight.Render(path))
	printDetail("%s on %s, %.1fmm legend, %.1f x %.1fmm", font.Family(), tpl.Name, size, lay.Bounds.Width(), lay.Bounds.Height())
	for _, w := range lay.Warnings {
		printWarning("%s", w)
	}
	if !lay.Shape.IsEmpty() && !bounds.ContainsRect(lay.Bounds) {
		printWarning("legend extends past the %s face", face)
	}
	return nil
}
