package cli

import (
	"io"

	"treesort/internal/notify"
	"treesort/internal/surface"
	"treesort/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Sort a changelist interactively (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, app)
		},
	}
}

func runTUI(cmd *cobra.Command, app *App) error {
	// The alt screen owns the terminal; logs only go to --log-file.
	logOut, closeLog, err := logWriter(app, io.Discard)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer closeLog()

	sink := &tui.StatusSink{}
	logger, err := newLogger(logOut, app.LogLevel)
	if err != nil {
		return writeErr(cmd, err)
	}
	s, err := openSession(cmd, app, sessionOpts{
		commit:    true,
		notifier:  notify.Multi{sink, notify.Slog{Logger: logger}},
		navigator: surface.BrowserNavigator{},
		logOut:    logOut,
	})
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := tui.Run(cmd.Context(), s.adapter, sink, app.Page); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
