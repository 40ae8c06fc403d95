package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"treesort/internal/format"

	"github.com/spf13/cobra"
)

type App struct {
	ConfigPath string
	Page       string

	UpdateURL string
	CSRFToken string
	CSRFField string
	Variant   string
	Cookie    string
	MaxDepth  int
	Timeout   time.Duration

	LogLevel   string
	LogFile    string
	PrettyJSON bool
	Format     string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "treesort",
		Short:        "Drag-and-drop ordering for tree admin changelists",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Sort a changelist interactively
  treesort --page http://127.0.0.1:8000/nodes/ --update-url http://127.0.0.1:8000/update/

  # Inspect the rows the engine would track
  treesort rows --page ./changelist.html --format table

  # Move the third row to the top, without the TUI
  treesort move --from 2 --to 0 --page http://127.0.0.1:8000/nodes/ --update-url http://127.0.0.1:8000/update/

  # Run the local reference backend
  treesort serve --addr 127.0.0.1:8000
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&app.ConfigPath, "config", envOr("TREESORT_CONFIG", ""), "Path to a .toml or .yaml config file")
	pf.StringVar(&app.Page, "page", envOr("TREESORT_PAGE", ""), "Changelist page: http(s) URL, file path, or - for stdin")
	pf.StringVar(&app.UpdateURL, "update-url", "", "Endpoint that receives move commits")
	pf.StringVar(&app.CSRFToken, "csrf-token", "", "Anti-forgery token (default: the page's hidden csrfmiddlewaretoken input)")
	pf.StringVar(&app.CSRFField, "csrf-field", "", "Form field carrying the token (default csrfmiddlewaretoken)")
	pf.StringVar(&app.Variant, "variant", "", "Markup variant (treebeard|admin-addons)")
	pf.StringVar(&app.Cookie, "cookie", "", "Cookie header sent with page fetches and commits")
	pf.IntVar(&app.MaxDepth, "max-depth", 0, "Deepest level that gets a detail link (0 = all)")
	pf.DurationVar(&app.Timeout, "timeout", 0, "Timeout for one commit (0 = none)")
	pf.StringVar(&app.LogLevel, "log-level", envOr("TREESORT_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	pf.StringVar(&app.LogFile, "log-file", envOr("TREESORT_LOG_FILE", ""), "Append logs to this file instead of stderr")
	pf.BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	pf.StringVar(&app.Format, "format", envOr("TREESORT_FORMAT", "json"), "Output format (json|table)")

	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newRowsCmd(app))
	cmd.AddCommand(newMoveCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
