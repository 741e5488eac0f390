package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/archive"
	"github.com/matzehuels/keyforge/pkg/config"
	"github.com/matzehuels/keyforge/pkg/errors"
	kio "github.com/matzehuels/keyforge/pkg/io"
	"github.com/matzehuels/keyforge/pkg/pipeline"
	"github.com/matzehuels/keyforge/pkg/template"
)

// generateOpts holds the command-line flags for the generate command.
// Zero values leave the request file or config in charge.
type generateOpts struct {
	texts    []string // legends given on the command line
	output   string   // ZIP archive path
	dir      string   // write loose STL files here instead of a ZIP
	font     string
	machine  string
	tplPath  string // base keycap STL replacing the machine template
	mode     string
	face     string
	scale    string
	shaper   string
	overflow string
	size     float64
	depth    float64
	kerning  bool
	refresh  bool
	workers  int
	plain    bool // no interactive progress view
}

func (c *CLI) generateCommand() *cobra.Command {
	var opts generateOpts

	cmd := &cobra.Command{
		Use:   "generate [request.json5]",
		Short: "Generate keycap STLs from a request file or legends",
		Long: `Generate keycap STLs and pack them into a ZIP archive together with a
report.json describing every keycap.

Legends come either from a JSON/JSON5 request file or from --text:

  keyforge generate --text 1,2,3,+,- --size 10
  keyforge generate pads.json5 -o pads.zip
  keyforge generate --text A --mode emboss --dir out/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) == 1 {
				input = args[0]
			}
			if input == "" && len(opts.texts) == 0 {
				return fmt.Errorf("nothing to generate: give a request file or --text")
			}
			if input != "" && len(opts.texts) > 0 {
				return fmt.Errorf("use either a request file or --text, not both")
			}
			return c.runGenerate(cmd.Context(), input, &opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.texts, "text", "t", nil, "legends, comma-separated or repeated")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output archive (default keycaps_<batch>.zip)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "write STL files and report.json to this directory instead")
	cmd.Flags().StringVarP(&opts.font, "font", "f", "", "font: built-in name, stored file name or URL")
	cmd.Flags().StringVarP(&opts.machine, "machine", "m", "", "keycap variant (see 'keyforge machines')")
	cmd.Flags().StringVar(&opts.tplPath, "template", "", "base keycap STL to use instead of the machine template")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "engrave (default) or emboss")
	cmd.Flags().StringVar(&opts.face, "face", "", "top (default) or bottom")
	cmd.Flags().StringVar(&opts.scale, "scale", "", "size refers to cap-height (default) or em")
	cmd.Flags().StringVar(&opts.shaper, "shaper", "", "simple (default) or harfbuzz")
	cmd.Flags().StringVar(&opts.overflow, "overflow", "", "shrink (default) or clip legends larger than the face")
	cmd.Flags().Float64Var(&opts.size, "size", 0, "default legend size in mm")
	cmd.Flags().Float64Var(&opts.depth, "depth", 0, "default engrave/emboss depth in mm")
	cmd.Flags().BoolVar(&opts.kerning, "kerning", false, "apply font kerning")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "regenerate cached keycaps")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel keycaps (default from config)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "plain output without the progress view")

	return cmd
}

// keycapsFromTexts numbers legends from 1 in order.
func keycapsFromTexts(texts []string) []pipeline.KeycapSpec {
	specs := make([]pipeline.KeycapSpec, len(texts))
	for i, t := range texts {
		specs[i] = pipeline.KeycapSpec{ID: pipeline.ID(strconv.Itoa(i + 1)), Text: t}
	}
	return specs
}

// buildRequest merges, from lowest to highest priority, the config, the
// request file and the flags.
func buildRequest(cfg config.Config, input string, opts *generateOpts) (pipeline.Request, error) {
	var req pipeline.Request
	if input != "" {
		r, err := kio.ImportRequest(input)
		if err != nil {
			return req, err
		}
		req = r
	} else {
		req.Keycaps = keycapsFromTexts(opts.texts)
	}

	if req.Font == "" {
		req.Font = cfg.Font
	}
	if req.Machine == "" {
		req.Machine = template.Machine(cfg.Machine)
	}
	if req.Defaults.SizeMm == 0 {
		req.Defaults.SizeMm = cfg.Defaults.SizeMm
	}
	if req.Defaults.DepthMm == 0 {
		req.Defaults.DepthMm = cfg.Defaults.DepthMm
	}

	setString(&req.Font, opts.font)
	setString((*string)(&req.Machine), opts.machine)
	setString((*string)(&req.Mode), opts.mode)
	setString((*string)(&req.Face), opts.face)
	setString((*string)(&req.Scale), opts.scale)
	setString((*string)(&req.Shaper), opts.shaper)
	setString((*string)(&req.Overflow), opts.overflow)
	if opts.size != 0 {
		req.Defaults.SizeMm = opts.size
	}
	if opts.depth != 0 {
		req.Defaults.DepthMm = opts.depth
	}
	req.Kerning = req.Kerning || opts.kerning
	req.Refresh = req.Refresh || opts.refresh
	req.Timeout = cfg.BatchTimeout

	if opts.tplPath != "" {
		tpl, err := loadTemplateFile(opts.tplPath)
		if err != nil {
			return req, err
		}
		req.Template = tpl
	}
	return req, nil
}

func loadTemplateFile(path string) (*template.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open template")
	}
	defer f.Close()
	return template.FromSTL(filepath.Base(path), f)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *CLI) runGenerate(ctx context.Context, input string, opts *generateOpts) error {
	cfg, svc, err := c.openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))
	if opts.workers > 0 {
		svc.Runner.Workers = opts.workers
	}

	req, err := buildRequest(cfg, input, opts)
	if err != nil {
		return err
	}
	sw := newStopwatch(c.Logger)
	c.Logger.Debug("generating", "keycaps", len(req.Keycaps), "font", req.Font, "machine", req.Machine, "mode", req.Mode)

	var res *pipeline.Result
	if !opts.plain && isatty.IsTerminal(os.Stderr.Fd()) {
		res, err = runWithProgress(ctx, svc.Runner, req)
	} else {
		res, err = runWithSpinner(ctx, svc.Runner, req)
	}
	if err != nil {
		return err
	}
	sw.done("batch " + res.BatchID)

	if len(res.Artifacts) == 0 {
		printBatch(res)
		return errors.New(errors.ErrCodeInvalidInput, "no keycap could be generated")
	}

	if opts.dir != "" {
		if err := writeDir(opts.dir, res); err != nil {
			return err
		}
	} else {
		path := opts.output
		if path == "" {
			path = archive.Name(res)
		}
		if err := writeArchive(path, res); err != nil {
			return err
		}
		printSuccess("Generated %s", StyleHighlight.Render(path))
	}
	printBatch(res)

	if a := res.Artifacts[0]; a.Text != "" {
		printNextStep("Preview a legend", fmt.Sprintf("%s preview %s", config.AppName, strconv.Quote(a.Text)))
	}
	return nil
}

func runWithSpinner(ctx context.Context, runner *pipeline.Runner, req pipeline.Request) (*pipeline.Result, error) {
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Generating %d keycaps...", len(req.Keycaps)))
	req.OnProgress = func(p pipeline.Progress) {
		spinner.SetMessage(fmt.Sprintf("Generating keycaps... %d/%d", p.Done, p.Total))
	}
	spinner.Start()
	res, err := runner.Execute(ctx, req)
	spinner.Stop()
	return res, err
}

func writeArchive(path string, res *pipeline.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := archive.Write(f, res, archive.Options{Report: true}); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeDir(dir string, res *pipeline.Result) error {
	paths, err := kio.WriteArtifacts(dir, res.Artifacts)
	if err != nil {
		return err
	}
	report := filepath.Join(dir, archive.ReportName)
	if err := kio.ExportReport(res, report); err != nil {
		return err
	}
	printSuccess("Wrote %d keycaps to %s", len(paths), StyleHighlight.Render(dir))
	for _, p := range paths {
		printFile(p)
	}
	printFile(report)
	return nil
}
