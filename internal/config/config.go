package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultCSRFField is the form field name the backend reads the anti-forgery token from.
const DefaultCSRFField = "csrfmiddlewaretoken"

var (
	ErrInvalid    = errors.New("invalid configuration")
	ErrAlreadySet = errors.New("configuration already set")
	ErrNotSet     = errors.New("configuration not set")
)

// Error reports a configuration that failed validation.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "config: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// Config is the page-level configuration of the reorder engine.
// It is immutable once handed to a Holder.
type Config struct {
	UpdateURL string `json:"update_url" toml:"update_url" yaml:"update_url"`
	CSRFToken string `json:"csrf_token" toml:"csrf_token" yaml:"csrf_token"`
	CSRFField string `json:"csrf_field" toml:"csrf_field" yaml:"csrf_field"`

	CurrentPage int `json:"current_page" toml:"current_page" yaml:"current_page"`
	TotalPages  int `json:"total_pages" toml:"total_pages" yaml:"total_pages"`

	// MaxDepth limits which items get a detail link; 0 means no limit.
	MaxDepth int     `json:"max_depth" toml:"max_depth" yaml:"max_depth"`
	Variant  Variant `json:"variant" toml:"variant" yaml:"variant"`

	// Cookie is sent verbatim with each commit (e.g. "sessionid=...; csrftoken=...").
	Cookie string `json:"cookie" toml:"cookie" yaml:"cookie"`
	// Timeout bounds a single commit; 0 waits for the transport.
	Timeout Duration `json:"timeout" toml:"timeout" yaml:"timeout"`
}

// Default returns the configuration before any file, env or flag is applied.
func Default() Config {
	return Config{
		CSRFField: DefaultCSRFField,
		Variant:   VariantTreebeard,
	}
}

// Profile returns the markup preset for the configured variant.
func (c Config) Profile() Profile {
	p, ok := profiles[c.Variant]
	if !ok {
		return profiles[VariantTreebeard]
	}
	return p
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.UpdateURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.CSRFToken, validation.Required),
		validation.Field(&c.CSRFField, validation.Required),
		validation.Field(&c.CurrentPage, validation.Min(0)),
		validation.Field(&c.TotalPages, validation.Min(0)),
		validation.Field(&c.MaxDepth, validation.Min(0)),
		validation.Field(&c.Variant, validation.Required, validation.In(VariantTreebeard, VariantAdminAddons)),
		validation.Field(&c.Timeout, validation.By(nonNegativeDuration)),
	)
	if err != nil {
		return &Error{Err: err}
	}
	if c.TotalPages > 0 && c.CurrentPage > c.TotalPages {
		return &Error{Err: fmt.Errorf("current_page %d exceeds total_pages %d", c.CurrentPage, c.TotalPages)}
	}
	return nil
}

func httpURL(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an absolute http(s) URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func nonNegativeDuration(v any) error {
	d, _ := v.(Duration)
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// Duration is a time.Duration that decodes from strings such as "5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
