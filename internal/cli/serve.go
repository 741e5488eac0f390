package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/server"
)

func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the keycap API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, svc, err := c.openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(ctx))

			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.New(svc.Runner, svc.Resolver, svc.Uploads(), c.Logger, server.Options{
				MaxBodyBytes:   cfg.Server.MaxBodyBytes,
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				RequestTimeout: cfg.Server.RequestTimeout,
				BatchTimeout:   cfg.BatchTimeout,
			})
			srv.RegisterHooks()
			printInfo("Serving on %s", StyleLink.Render(displayURL(addr)))
			printDetail("cache: %s · workers: %d", cfg.Cache.Backend, svc.Runner.Workers)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	return cmd
}

// displayURL turns a listen address into a clickable URL.
func displayURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
