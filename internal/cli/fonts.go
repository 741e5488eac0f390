package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/fontstore"
)

func (c *CLI) fontsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fonts",
		Short: "List and add fonts",
	}
	cmd.AddCommand(c.fontsListCommand())
	cmd.AddCommand(c.fontsAddCommand())
	return cmd
}

func (c *CLI) fontsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and stored fonts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, svc, err := c.openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(ctx))

			infos, err := svc.Resolver.List(ctx)
			if err != nil {
				return err
			}
			fmt.Println(fontTable(infos))
			printDetail("Font directory: %s", svc.Files.Path())
			return nil
		},
	}
}

func fontTable(infos []fontstore.Info) string {
	rows := make([][]string, len(infos))
	for i, f := range infos {
		modified := "—"
		if !f.Modified.IsZero() {
			modified = f.Modified.Format("Jan 2, 2006")
		}
		rows[i] = []string{f.Name, f.Source, formatBytes(f.Size), modified}
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Font", "Source", "Size", "Added").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle.Padding(0, 1)
			}
			s := lipgloss.NewStyle().Padding(0, 1)
			if col == 0 {
				return s.Foreground(colorWhite)
			}
			return s.Foreground(colorGray)
		}).
		Render()
}

func (c *CLI) fontsAddCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <file.ttf|file.otf>",
		Short: "Store a font for use by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, svc, err := c.openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(ctx))

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			f, err := fontstore.Upload(ctx, svc.Uploads(), name, data)
			if err != nil {
				return err
			}
			printSuccess("Added %s", StyleHighlight.Render(name))
			printKeyValue("Family", f.Family())
			printKeyValue("Glyphs", fmt.Sprint(f.NumGlyphs()))
			printKeyValue("Size", formatBytes(int64(len(data))))
			printNextStep("Use it", fmt.Sprintf("keyforge generate --font %s --text A", name))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "store under this file name (default the file's base name)")
	return cmd
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
