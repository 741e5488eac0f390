// Package cli implements the keyforge command-line interface.
//
// # Commands
//
//   - generate: build keycap STLs from a request file or a list of legends
//   - preview:  render the legend placement on the keycap face as PNG
//   - fonts:    list built-in and stored fonts, add new ones
//   - machines: list keycap variants
//   - serve:    run the HTTP API
//   - cache:    inspect and clear the artifact cache
//
// Settings come from the TOML config file (see package config); flags
// override them per invocation.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/buildinfo"
	"github.com/matzehuels/keyforge/pkg/config"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          config.AppName,
		Short:        "Keyforge engraves legends into 3D-printable keycaps",
		Long:         `Keyforge turns short text legends into watertight keycap STL files, engraved or embossed with any TrueType or OpenType font, and packs whole batches into a single ZIP archive.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/keyforge/config.toml)")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", false, "disable the artifact cache")

	generate, preview := c.generateCommand(), c.previewCommand()
	registerFlagCompletions(generate, preview)

	root.AddCommand(generate)
	root.AddCommand(preview)
	root.AddCommand(c.fontsCommand())
	root.AddCommand(c.machinesCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Services
// =============================================================================

// loadConfig reads the config file selected by --config.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	c.Logger.Debug("loaded config", "path", c.configPath, "cache", cfg.Cache.Backend, "machine", cfg.Machine)
	return cfg, nil
}

// openServices loads the config and opens the cache, font stores and
// runner. The caller closes the returned services.
func (c *CLI) openServices(ctx context.Context) (config.Config, *config.Services, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	svc, err := cfg.Open(ctx, c.Logger, c.noCache)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, svc, nil
}
