// Package syncclient sends tree mutations to the backend update endpoint.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"treesort/internal/config"
	"treesort/internal/model"
)

// TransportMessage is shown to the user when the request itself failed.
const TransportMessage = "there has been a problem sorting the items"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

var (
	ErrTransport   = errors.New("sync transport failure")
	ErrApplication = errors.New("sync rejected by server")
)

// TransportError means the request did not complete or returned a non-2xx status.
type TransportError struct {
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sync: unexpected status %d", e.Status)
	}
	return "sync: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// UserMessage is the text for the error notifier.
func (e *TransportError) UserMessage() string { return TransportMessage }

// ApplicationError means the server understood the request and refused the move.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string { return "sync: server error: " + e.Message }

func (e *ApplicationError) Is(target error) bool { return target == ErrApplication }

func (e *ApplicationError) UserMessage() string { return e.Message }

// UserMessage returns the notifier text for a commit error.
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return TransportMessage
}

// Outcome describes a commit the server accepted.
type Outcome struct {
	RequestID string        `json:"requestId"`
	Status    int           `json:"status"`
	Message   string        `json:"message,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Client struct {
	endpoint  string
	csrfField string
	csrfToken string
	cookie    string
	timeout   time.Duration

	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCookie overrides the configured Cookie header.
func WithCookie(cookie string) Option {
	return func(c *Client) { c.cookie = strings.TrimSpace(cookie) }
}

// New builds a client from a validated configuration.
func New(cfg config.Config, opts ...Option) *Client {
	field := strings.TrimSpace(cfg.CSRFField)
	if field == "" {
		field = config.DefaultCSRFField
	}
	c := &Client{
		endpoint:  cfg.UpdateURL,
		csrfField: field,
		csrfToken: cfg.CSRFToken,
		cookie:    strings.TrimSpace(cfg.Cookie),
		timeout:   cfg.Timeout.Duration(),
		http:      http.DefaultClient,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Form encodes m the way the update endpoint reads it.
func (c *Client) Form(m model.Mutation) url.Values {
	v := url.Values{}
	v.Set("node", m.MovedKey)
	v.Set("depth", strconv.Itoa(m.Depth))
	v.Set(c.csrfField, c.csrfToken)
	if m.ParentKey != nil && strings.TrimSpace(*m.ParentKey) != "" {
		v.Set("parent", strings.TrimSpace(*m.ParentKey))
	}
	v.Set("pos", m.Position.Wire())
	v.Set("target", m.AnchorKey)
	return v
}

// Commit posts m and classifies the reply. Errors are *TransportError or *ApplicationError.
func (c *Client) Commit(ctx context.Context, m model.Mutation) (Outcome, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqID := uuid.NewString()
	body := c.Form(m).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return Outcome{}, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRFToken", c.csrfToken)
	req.Header.Set("X-Request-ID", reqID)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	log := c.logger.With("request_id", reqID, "node", m.MovedKey, "pos", m.Position.Wire(), "target", m.AnchorKey)
	log.Debug("sync commit")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("sync transport failed", "error", err)
		return Outcome{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		log.Warn("sync rejected", "status", resp.StatusCode)
		return Outcome{}, &TransportError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		log.Warn("sync read failed", "error", err)
		return Outcome{}, &TransportError{Status: resp.StatusCode, Err: err}
	}

	out := Outcome{RequestID: reqID, Status: resp.StatusCode, Elapsed: time.Since(start)}
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		msg := res.Get("message")
		if msg.Type == gjson.String && msg.String() == "error" {
			appErr := &ApplicationError{Message: res.Get("error").String()}
			log.Info("sync application error", "error", appErr.Message)
			return Outcome{}, appErr
		}
		if msg.Type == gjson.String {
			out.Message = msg.String()
		}
	}
	log.Debug("sync ok", "status", resp.StatusCode, "elapsed", out.Elapsed)
	return out, nil
}
