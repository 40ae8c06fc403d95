package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "TREESORT_"

// Load builds a Config from defaults, an optional file and the environment.
// CLI flags are applied by the caller afterwards. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := FromEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(b)).Decode(cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

// FromEnv overlays TREESORT_* variables onto cfg.
func FromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("UPDATE_URL", &cfg.UpdateURL)
	str("CSRF_TOKEN", &cfg.CSRFToken)
	str("CSRF_FIELD", &cfg.CSRFField)
	str("COOKIE", &cfg.Cookie)
	for name, dst := range map[string]*int{
		"CURRENT_PAGE": &cfg.CurrentPage,
		"TOTAL_PAGES":  &cfg.TotalPages,
		"MAX_DEPTH":    &cfg.MaxDepth,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup(EnvPrefix + "VARIANT"); ok && strings.TrimSpace(v) != "" {
		variant, err := ParseVariant(v)
		if err != nil {
			return err
		}
		cfg.Variant = variant
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		if err := cfg.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
	}
	return nil
}
