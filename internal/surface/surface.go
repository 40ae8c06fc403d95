// Package surface binds a drag-capable row list to the reorder engine.
package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"treesort/internal/engine"
	"treesort/internal/model"
)

var (
	ErrNotActivatable = errors.New("item has no detail link")
	ErrAttached       = errors.New("surface already attached")
	ErrNotAttached    = errors.New("surface not attached")
)

// Navigator opens an item's detail view.
type Navigator interface {
	Navigate(url string) error
}

type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// BrowserNavigator opens URLs with the platform's default handler.
type BrowserNavigator struct{}

func (BrowserNavigator) Navigate(u string) error {
	u = strings.TrimSpace(u)
	if u == "" {
		return errors.New("empty url")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Wait()
}

// Activatable reports whether an item at depth gets a detail link; maxDepth 0 means no limit.
func Activatable(depth, maxDepth int) bool {
	return maxDepth == 0 || depth <= maxDepth
}

// Adapter feeds completed drags into the engine and handles detail activation.
type Adapter struct {
	mu       sync.Mutex
	attached bool

	dom      *DOM
	eng      *engine.Engine
	nav      Navigator
	maxDepth int
	links    map[string]string
}

// Attach wires the surface once. An empty DOM attaches nothing and reports false.
func (a *Adapter) Attach(dom *DOM, eng *engine.Engine, nav Navigator, maxDepth int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached {
		return false, ErrAttached
	}
	if dom == nil || dom.Len() == 0 || eng == nil {
		return false, nil
	}
	if _, err := eng.Registry().Resolve(dom.Order()); err != nil {
		return false, fmt.Errorf("attach: %w", err)
	}
	if nav == nil {
		nav = BrowserNavigator{}
	}
	a.dom = dom
	a.eng = eng
	a.nav = nav
	a.maxDepth = maxDepth
	a.links = map[string]string{}
	for _, it := range eng.Registry().Items() {
		if it.DetailURL == "" || !Activatable(it.Depth, maxDepth) {
			continue
		}
		a.links[it.Key] = it.DetailURL
	}
	a.attached = true
	return true, nil
}

func (a *Adapter) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

func (a *Adapter) DOM() *DOM { return a.dom }

// DetailLink returns the wired detail URL for key.
func (a *Adapter) DetailLink(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.links[key]
	return u, ok
}

// Activate navigates to the item's detail view without touching the move pipeline.
func (a *Adapter) Activate(key string) error {
	u, ok := a.DetailLink(key)
	if !ok {
		if !a.Attached() {
			return ErrNotAttached
		}
		return fmt.Errorf("%w: %s", ErrNotActivatable, key)
	}
	return a.nav.Navigate(u)
}

// Dropped reports a drag the DOM already shows and runs it through the engine.
// order is the DOM key order right after that drag; later drags do not change
// what this move commits. Stripe changes from a successful commit are applied to the DOM.
func (a *Adapter) Dropped(ctx context.Context, oldIndex, newIndex int, order []string) engine.Result {
	if !a.Attached() {
		return engine.Result{Err: ErrNotAttached}
	}
	if oldIndex == newIndex {
		return engine.Result{Skipped: true}
	}
	res := a.eng.Move(ctx, engine.Move{OldIndex: oldIndex, NewIndex: newIndex, Order: order})
	for _, ch := range res.Stripes {
		a.dom.SetStripe(ch.Key, ch.To)
	}
	return res
}

// OnMove applies the drag to the DOM the way the drag library would, then commits it.
func (a *Adapter) OnMove(ctx context.Context, oldIndex, newIndex int) engine.Result {
	if !a.Attached() {
		return engine.Result{Err: ErrNotAttached}
	}
	if oldIndex == newIndex {
		return engine.Result{Skipped: true}
	}
	order, err := a.dom.Drag(oldIndex, newIndex)
	if err != nil {
		return engine.Result{Err: err}
	}
	return a.Dropped(ctx, oldIndex, newIndex, order)
}

// Stripes returns the DOM's current stripe classes by key.
func (a *Adapter) Stripes() map[string]model.Stripe {
	out := map[string]model.Stripe{}
	if a.dom == nil {
		return out
	}
	for _, r := range a.dom.Rows() {
		out[r.Key] = r.Stripe
	}
	return out
}
