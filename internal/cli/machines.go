package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/template"
)

func (c *CLI) machinesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "machines",
		Short: "List keycap variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(machineTable(template.Machines()))
			return nil
		},
	}
}

func machineTable(variants []template.Variant) string {
	rows := make([][]string, len(variants))
	for i, v := range variants {
		name := string(v.Machine)
		if v.Machine == template.DefaultMachine {
			name += " *"
		}
		kind := "solid"
		if v.Hollow {
			kind = "hollow"
		}
		rows[i] = []string{
			name,
			v.Description,
			fmt.Sprintf("%.1f x %.1f", v.TopWidth, v.TopDepth),
			fmt.Sprintf("%.1f", v.Height),
			kind,
		}
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Machine", "Description", "Face (mm)", "Height (mm)", "Body").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == -1:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return s.Foreground(colorCyan)
			default:
				return s.Foreground(colorWhite)
			}
		}).
		Render()
}
