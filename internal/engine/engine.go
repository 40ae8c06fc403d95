// Package engine runs one drag through translation, commit and reconciliation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"treesort/internal/model"
	"treesort/internal/notify"
	"treesort/internal/registry"
	"treesort/internal/syncclient"
	"treesort/internal/translate"
)

// ErrRegistry wraps failures to map the drag's DOM order onto the registry.
var ErrRegistry = errors.New("registry out of step with surface")

// StaleMessage is shown when the page no longer matches the tracked items.
const StaleMessage = "the list is out of step with the page; reload it to keep sorting"

// Committer sends a mutation to the backend.
type Committer interface {
	Commit(ctx context.Context, m model.Mutation) (syncclient.Outcome, error)
}

type State int32

const (
	StateIdle State = iota
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// Move is one completed drag as reported by the surface.
type Move struct {
	OldIndex int
	NewIndex int
	// Order is the surface's row key order after the drag library applied the move.
	Order []string
}

// Result reports what happened to a Move.
type Result struct {
	Skipped  bool                    `json:"skipped"`
	Mutation model.Mutation          `json:"mutation"`
	Outcome  syncclient.Outcome      `json:"outcome"`
	Stripes  []registry.StripeChange `json:"stripes,omitempty"`
	Err      error                   `json:"-"`
}

// Engine owns the registry for a surface and serializes commits.
type Engine struct {
	reg      *registry.Registry
	commit   Committer
	notifier notify.Notifier
	logger   *slog.Logger

	commitMu sync.Mutex
	state    atomic.Int32
	inflight atomic.Int32
}

type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(reg *registry.Registry, c Committer, opts ...Option) *Engine {
	e := &Engine{
		reg:    reg,
		commit: c,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.notifier == nil {
		e.notifier = notify.Slog{Logger: e.logger}
	}
	return e
}

func (e *Engine) Registry() *registry.Registry { return e.reg }

func (e *Engine) State() State { return State(e.state.Load()) }

// Pending reports how many moves are committing or queued.
func (e *Engine) Pending() int { return int(e.inflight.Load()) }

// Move translates mv, commits it and reindexes the registry on success.
//
// A move that does not change position is skipped without a commit. Commit
// failures are reported to the notifier and returned; the registry keeps its
// pre-drag indexes. Concurrent calls queue behind the commit in flight.
func (e *Engine) Move(ctx context.Context, mv Move) Result {
	if mv.OldIndex == mv.NewIndex {
		return Result{Skipped: true}
	}

	e.inflight.Add(1)
	defer e.inflight.Add(-1)

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	post, err := e.reg.Resolve(mv.Order)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRegistry, err)
		e.logger.Error("move rejected", "error", err)
		e.notifier.Notify(StaleMessage)
		return Result{Err: err}
	}
	m, err := translate.Translate(mv.OldIndex, mv.NewIndex, post)
	if err != nil {
		if errors.Is(err, translate.ErrNoop) {
			return Result{Skipped: true}
		}
		e.logger.Error("move not translatable", "old", mv.OldIndex, "new", mv.NewIndex, "error", err)
		e.notifier.Notify(err.Error())
		return Result{Err: err}
	}

	log := e.logger.With("node", m.MovedKey, "pos", string(m.Position), "target", m.AnchorKey)
	e.state.Store(int32(StateCommitting))
	start := time.Now()
	out, err := e.commit.Commit(ctx, m)
	e.state.Store(int32(StateIdle))
	if err != nil {
		log.Warn("move commit failed", "error", err, "elapsed", time.Since(start))
		e.notifier.Notify(syncclient.UserMessage(err))
		return Result{Mutation: m, Err: err}
	}

	stripes, err := e.reg.Reindex(mv.Order)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRegistry, err)
		log.Error("reindex after commit failed", "error", err)
		e.notifier.Notify(StaleMessage)
		return Result{Mutation: m, Outcome: out, Err: err}
	}
	log.Info("move committed", "request_id", out.RequestID, "stripes", len(stripes), "elapsed", time.Since(start))
	return Result{Mutation: m, Outcome: out, Stripes: stripes}
}

// MoveAsync runs Move on its own goroutine and delivers the result on the returned channel.
func (e *Engine) MoveAsync(ctx context.Context, mv Move) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		ch <- e.Move(ctx, mv)
	}()
	return ch
}
