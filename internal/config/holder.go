package config

import "sync"

// Holder stores the configuration for the lifetime of a surface.
// It accepts exactly one valid Config.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

// Set validates cfg and stores it. A second call fails with ErrAlreadySet.
func (h *Holder) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg != nil {
		return ErrAlreadySet
	}
	c := cfg
	h.cfg = &c
	return nil
}

func (h *Holder) Get() (Config, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cfg == nil {
		return Config{}, ErrNotSet
	}
	return *h.cfg, nil
}

// MustGet is for call sites that run strictly after Set.
func (h *Holder) MustGet() Config {
	c, err := h.Get()
	if err != nil {
		panic(err)
	}
	return c
}
