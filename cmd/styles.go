package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "選べる画風の一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		renderStyles(cmd.OutOrStdout(), domain.ArtStyles())
	},
}

func renderStyles(w io.Writer, styles []domain.ArtStyle) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Prompt"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, s := range styles {
		id := s.ID
		if id == domain.DefaultArtStyleID {
			id += " *"
		}
		t.AppendRow(table.Row{id, s.Name, s.Prompt})
	}
	t.Render()
}
