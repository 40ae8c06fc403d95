// Package notify is the single channel user-visible failures are reported on.
package notify

import (
	"log/slog"
	"sync"
)

type Notifier interface {
	Notify(msg string)
}

// Func adapts a function to Notifier.
type Func func(msg string)

func (f Func) Notify(msg string) {
	if f != nil {
		f(msg)
	}
}

// Slog reports messages as error records on a logger.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) Notify(msg string) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Error(msg, "component", "notify")
}

// Multi fans a message out to every notifier.
type Multi []Notifier

func (m Multi) Notify(msg string) {
	for _, n := range m {
		if n != nil {
			n.Notify(msg)
		}
	}
}

// Recorder keeps messages in memory; it is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Notify(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Last returns the most recent message, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}
