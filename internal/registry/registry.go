// Package registry holds the ordered item sequence of one rendered changelist.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"treesort/internal/model"
)

var ErrOrderMismatch = errors.New("dom order does not match registry")

type Options struct {
	DetailSource     model.DetailSource
	ReconcileStripes bool
}

// StripeChange is one row whose stripe class must be updated after a reindex.
type StripeChange struct {
	Key   string       `json:"key"`
	Index int          `json:"index"`
	From  model.Stripe `json:"from"`
	To    model.Stripe `json:"to"`
}

// Registry is the source of truth for the settled visual order.
type Registry struct {
	mu    sync.RWMutex
	opts  Options
	items []model.Item
	byKey map[string]int
}

// Build creates a registry from rows in document order. Rows without a key are skipped.
func Build(rows []model.Row, opts Options) *Registry {
	r := &Registry{opts: opts, byKey: map[string]int{}}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		if _, dup := r.byKey[key]; dup {
			continue
		}
		i := len(r.items)
		it := model.Item{
			Index:     i,
			Key:       key,
			Depth:     row.Depth,
			ParentKey: cloneKey(row.ParentKey),
			Title:     row.Title,
			DetailURL: detailURL(row, opts.DetailSource),
			Stripe:    row.Stripe,
		}
		if it.Stripe == "" {
			it.Stripe = model.StripeFor(i)
		}
		r.items = append(r.items, it)
		r.byKey[key] = i
	}
	return r
}

func detailURL(row model.Row, src model.DetailSource) string {
	switch src {
	case model.DetailFromHref:
		return strings.TrimSpace(row.Href)
	default:
		if u := strings.TrimSpace(row.ListURL); u != "" {
			return u
		}
		return strings.TrimSpace(row.Href)
	}
}

func cloneKey(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func (r *Registry) Options() Options { return r.opts }

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Items returns a copy of the sequence in registry order.
func (r *Registry) Items() []model.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Item, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.items))
	for i, it := range r.items {
		out[i] = it.Key
	}
	return out
}

func (r *Registry) Lookup(key string) (model.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[strings.TrimSpace(key)]
	if !ok {
		return model.Item{}, false
	}
	return r.items[i], true
}

// Resolve maps a key order (e.g. the DOM order after a drag) to items.
func (r *Registry) Resolve(order []string) ([]model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(order)
}

func (r *Registry) resolveLocked(order []string) ([]model.Item, error) {
	if len(order) != len(r.items) {
		return nil, fmt.Errorf("%w: %d rows, %d items", ErrOrderMismatch, len(order), len(r.items))
	}
	out := make([]model.Item, len(order))
	seen := make(map[string]bool, len(order))
	for i, k := range order {
		k = strings.TrimSpace(k)
		j, ok := r.byKey[k]
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q", ErrOrderMismatch, k)
		}
		if seen[k] {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrOrderMismatch, k)
		}
		seen[k] = true
		out[i] = r.items[j]
	}
	return out, nil
}

// Reindex adopts domOrder as the settled order and reassigns indexes.
// It returns the stripe changes to apply when stripe reconciliation is enabled.
// On error the registry is unchanged.
func (r *Registry) Reindex(domOrder []string) ([]StripeChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.resolveLocked(domOrder)
	if err != nil {
		return nil, err
	}
	var changes []StripeChange
	byKey := make(map[string]int, len(next))
	for i := range next {
		next[i].Index = i
		byKey[next[i].Key] = i
		if !r.opts.ReconcileStripes {
			continue
		}
		want := model.StripeFor(i)
		if next[i].Stripe != want {
			changes = append(changes, StripeChange{Key: next[i].Key, Index: i, From: next[i].Stripe, To: want})
			next[i].Stripe = want
		}
	}
	r.items = next
	r.byKey = byKey
	return changes, nil
}

// Settled reports whether every index equals its array position.
func (r *Registry) Settled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, it := range r.items {
		if it.Index != i {
			return false
		}
	}
	return true
}
