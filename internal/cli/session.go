package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"treesort/internal/config"
	"treesort/internal/engine"
	"treesort/internal/markup"
	"treesort/internal/notify"
	"treesort/internal/registry"
	"treesort/internal/surface"
	"treesort/internal/syncclient"

	"github.com/spf13/cobra"
)

const maxPageBytes = 16 << 20

// session is one loaded changelist wired to an engine and a surface.
type session struct {
	cfg     config.Config
	// holder is set for commit sessions and owns the validated configuration.
	holder  *config.Holder
	page    markup.Page
	reg     *registry.Registry
	engine  *engine.Engine
	adapter *surface.Adapter
	client  *syncclient.Client
	logger  *slog.Logger

	closeLog func()
}

func (s *session) Close() {
	if s.closeLog != nil {
		s.closeLog()
	}
}

type sessionOpts struct {
	// commit requires a valid configuration before anything is attached.
	commit    bool
	notifier  notify.Notifier
	navigator surface.Navigator
	logOut    io.Writer
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// logWriter returns where logs go: --log-file when set, fallback otherwise.
func logWriter(app *App, fallback io.Writer) (io.Writer, func(), error) {
	path := strings.TrimSpace(app.LogFile)
	if path == "" {
		return fallback, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// loadConfig layers defaults, the config file, the environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, app *App) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("update-url") {
		cfg.UpdateURL = strings.TrimSpace(app.UpdateURL)
	}
	if changed("csrf-token") {
		cfg.CSRFToken = strings.TrimSpace(app.CSRFToken)
	}
	if changed("csrf-field") {
		cfg.CSRFField = strings.TrimSpace(app.CSRFField)
	}
	if changed("cookie") {
		cfg.Cookie = strings.TrimSpace(app.Cookie)
	}
	if changed("max-depth") {
		cfg.MaxDepth = app.MaxDepth
	}
	if changed("timeout") {
		cfg.Timeout = config.Duration(app.Timeout)
	}
	if changed("variant") {
		v, err := config.ParseVariant(app.Variant)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Variant = v
	}
	return cfg, nil
}

// readPage loads the changelist markup named by ref. It returns the base URL
// relative links resolve against (nil for files and stdin).
func readPage(ctx context.Context, cmd *cobra.Command, ref string, cfg config.Config) ([]byte, *url.URL, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, nil, errors.New("missing --page (URL, file, or - for stdin)")
	case ref == "-":
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxPageBytes))
		return b, nil, err
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetchPage(ctx, ref, cfg)
	default:
		b, err := os.ReadFile(ref)
		if err != nil {
			return nil, nil, fmt.Errorf("read page: %w", err)
		}
		return b, nil, nil
	}
}

func fetchPage(ctx context.Context, ref string, cfg config.Config) ([]byte, *url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, nil, fmt.Errorf("page url: %w", err)
	}
	if d := cfg.Timeout.Duration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/html")
	if cfg.Cookie != "" {
		req.Header.Set("Cookie", cfg.Cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("fetch page: %s returned %s", u, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch page: %w", err)
	}
	return b, resp.Request.URL, nil
}

func openSession(cmd *cobra.Command, app *App, o sessionOpts) (_ *session, err error) {
	logOut, closeLog := o.logOut, func() {}
	if logOut == nil {
		if logOut, closeLog, err = logWriter(app, cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil {
			closeLog()
		}
	}()
	logger, err := newLogger(logOut, app.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, app)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	body, base, err := readPage(ctx, cmd, app.Page, cfg)
	if err != nil {
		return nil, err
	}
	page, err := markup.Parse(bytes.NewReader(body), cfg.Profile(), base)
	if err != nil {
		return nil, err
	}
	if cfg.CSRFToken == "" {
		cfg.CSRFToken = page.CSRFToken
	}
	logger.Debug("page loaded", "page", app.Page, "rows", len(page.Rows), "variant", string(cfg.Variant))

	// A page without sortable rows is not an error; nothing gets attached.
	var holder *config.Holder
	if o.commit && len(page.Rows) > 0 {
		holder = &config.Holder{}
		if err := holder.Set(cfg); err != nil {
			return nil, err
		}
		cfg = holder.MustGet()
	}

	profile := cfg.Profile()
	reg := registry.Build(page.Rows, registry.Options{
		DetailSource:     profile.DetailSource,
		ReconcileStripes: profile.ReconcileStripes,
	})
	client := syncclient.New(cfg, syncclient.WithLogger(logger))

	notifier := o.notifier
	if notifier == nil {
		notifier = notify.Slog{Logger: logger}
	}
	eng := engine.New(reg, client, engine.WithNotifier(notifier), engine.WithLogger(logger))

	a := &surface.Adapter{}
	if _, err := a.Attach(surface.NewDOM(page.Rows), eng, o.navigator, cfg.MaxDepth); err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		holder:  holder,
		page:    page,
		reg:     reg,
		engine:  eng,
		adapter: a,
		client:  client,
		logger:  logger,

		closeLog: closeLog,
	}, nil
}
