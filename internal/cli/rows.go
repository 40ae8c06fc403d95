package cli

import (
	"strconv"

	"treesort/internal/model"
	"treesort/internal/surface"

	"github.com/spf13/cobra"
)

type rowView struct {
	model.Item
	Activatable bool `json:"activatable"`
}

type rowsData struct {
	Variant string    `json:"variant"`
	Rows    []rowView `json:"rows"`
}

type rowsResult struct {
	Data rowsData `json:"data"`
}

func (r rowsResult) Columns() []string {
	return []string{"#", "key", "depth", "parent", "title", "stripe", "detail"}
}

func (r rowsResult) Cells() [][]string {
	out := make([][]string, 0, len(r.Data.Rows))
	for _, row := range r.Data.Rows {
		parent := "-"
		if row.ParentKey != nil {
			parent = *row.ParentKey
		}
		detail := ""
		if row.Activatable {
			detail = row.DetailURL
		}
		out = append(out, []string{
			strconv.Itoa(row.Index),
			row.Key,
			strconv.Itoa(row.Depth),
			parent,
			row.Title,
			string(row.Stripe),
			detail,
		})
	}
	return out
}

func newRowsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rows",
		Short: "List the rows the engine tracks for a changelist page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app, sessionOpts{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()
			out := rowsResult{Data: rowsData{Variant: string(s.cfg.Variant), Rows: []rowView{}}}
			for _, it := range s.reg.Items() {
				out.Data.Rows = append(out.Data.Rows, rowView{
					Item:        it,
					Activatable: it.DetailURL != "" && surface.Activatable(it.Depth, s.cfg.MaxDepth),
				})
			}
			return writeOut(cmd, app, out)
		},
	}
}
