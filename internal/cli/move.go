package cli

import (
	"errors"
	"fmt"
	"strings"

	"treesort/internal/engine"
	"treesort/internal/model"
	"treesort/internal/surface"
	"treesort/internal/syncclient"
	"treesort/internal/translate"

	"github.com/spf13/cobra"
)

type moveData struct {
	From    int               `json:"from"`
	To      int               `json:"to"`
	DryRun  bool              `json:"dryRun"`
	Skipped bool              `json:"skipped"`
	Result  *engine.Result    `json:"result,omitempty"`
	Plan    *model.Mutation   `json:"mutation,omitempty"`
	Form    map[string]string `json:"form,omitempty"`
	Order   []string          `json:"order"`
}

func newMoveCmd(app *App) *cobra.Command {
	var from, to int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move one row and commit it, as a drag and drop would",
		Long: strings.TrimSpace(`
Move the row at --from to --to (0-based, in page order) and commit the
anchor-based mutation to --update-url.

The move is translated exactly like a drop on the interactive surface:
index 0 becomes "first", the last index becomes "last", anything else
becomes "right" of the row before it.
`),
		Example: strings.TrimSpace(`
# Show what would be sent
treesort move --from 3 --to 1 --page ./changelist.html --dry-run

# Commit against the reference backend
treesort move --from 3 --to 1 --page http://127.0.0.1:8000/nodes/ --update-url http://127.0.0.1:8000/update/
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app, sessionOpts{commit: !dryRun})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()
			if !s.adapter.Attached() {
				return writeErr(cmd, errors.New("move: page has no sortable rows"))
			}
			if dryRun {
				return runMovePlan(cmd, app, s, from, to)
			}

			res := s.adapter.OnMove(cmd.Context(), from, to)
			if res.Err != nil {
				if errors.Is(res.Err, syncclient.ErrTransport) || errors.Is(res.Err, syncclient.ErrApplication) {
					return writeErr(cmd, fmt.Errorf("move: %s: %w", syncclient.UserMessage(res.Err), res.Err))
				}
				return writeErr(cmd, fmt.Errorf("move: %w", res.Err))
			}
			data := moveData{From: from, To: to, Skipped: res.Skipped, Order: s.adapter.DOM().Order()}
			if !res.Skipped {
				data.Result = &res
			}
			return writeOut(cmd, app, map[string]any{"data": data})
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "Index of the row to move (0-based)")
	cmd.Flags().IntVar(&to, "to", 0, "Index the row lands on (0-based)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the mutation and form without committing")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// runMovePlan translates the move on a scratch copy of the rows; nothing is committed.
func runMovePlan(cmd *cobra.Command, app *App, s *session, from, to int) error {
	dom := surface.NewDOM(s.page.Rows)
	order, err := dom.Drag(from, to)
	if err != nil {
		return writeErr(cmd, fmt.Errorf("move: %w", err))
	}
	data := moveData{From: from, To: to, DryRun: true, Order: order}
	post, err := s.reg.Resolve(order)
	if err != nil {
		return writeErr(cmd, fmt.Errorf("move: %w", err))
	}
	m, err := translate.Translate(from, to, post)
	switch {
	case errors.Is(err, translate.ErrNoop):
		data.Skipped = true
		data.Order = s.reg.Keys()
	case err != nil:
		return writeErr(cmd, fmt.Errorf("move: %w", err))
	default:
		data.Plan = &m
		data.Form = map[string]string{}
		for k, vs := range s.client.Form(m) {
			if len(vs) > 0 {
				data.Form[k] = vs[0]
			}
		}
	}
	return writeOut(cmd, app, map[string]any{"data": data})
}
