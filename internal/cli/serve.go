package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"treesort/internal/config"
	"treesort/internal/devserver"

	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	var addr, dbPath, token string
	var origins []string
	var seed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference tree admin backend",
		Long: strings.TrimSpace(`
Serve a small tree admin backed by SQLite: changelist pages under /nodes/
in the selected markup variant, and the update view at /update/ that
treesort commits moves to. Changelist pages stream fresh rows over SSE
after every accepted move.
`),
		Example: strings.TrimSpace(`
# In-memory demo tree on localhost
treesort serve --addr 127.0.0.1:8000

# Persist to a file, admin-addons markup
treesort serve --db ./nodes.sqlite --variant admin-addons
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), app.LogLevel)
			if err != nil {
				return writeErr(cmd, err)
			}
			variant := config.VariantTreebeard
			if strings.TrimSpace(app.Variant) != "" {
				if variant, err = config.ParseVariant(app.Variant); err != nil {
					return writeErr(cmd, err)
				}
			}
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				return writeErr(cmd, errors.New("serve: missing --addr"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := devserver.Open(ctx, dbPath)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			seeded := false
			if seed {
				if seeded, err = devserver.SeedDemo(ctx, st); err != nil {
					return writeErr(cmd, err)
				}
			}

			srv, err := devserver.New(st, devserver.Options{
				CSRFToken:      token,
				Variant:        variant,
				AllowedOrigins: origins,
				Logger:         logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}
			base := "http://" + ln.Addr().String()

			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      ln.Addr().String(),
					"url":       base + "/nodes/",
					"updateUrl": base + "/update/",
					"csrfToken": token,
					"variant":   string(variant),
					"seeded":    seeded,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "treesort backend running at %s/nodes/\n", base)

			// Request contexts derive from ctx so event streams end with the command.
			hs := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			errCh := make(chan error, 1)
			go func() { errCh <- hs.Serve(ln) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return writeErr(cmd, err)
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return hs.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("TREESORT_ADDR", "127.0.0.1:8000"), "Bind address (host:port or :port)")
	cmd.Flags().StringVar(&dbPath, "db", envOr("TREESORT_DB", ""), "SQLite database file (default: in memory)")
	cmd.Flags().StringVar(&token, "token", envOr("TREESORT_DEV_TOKEN", "dev-token"), "CSRF token the update view accepts")
	cmd.Flags().StringSliceVar(&origins, "origins", nil, "Allowed CORS origins")
	cmd.Flags().BoolVar(&seed, "seed", true, "Add a demo tree when the store is empty")
	return cmd
}
