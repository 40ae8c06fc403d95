package devserver

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"
)

type hub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: map[chan struct{}]struct{}{}}
}

func (h *hub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *hub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// handleEvents streams the re-rendered #result_list after every committed move.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.hub.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			vm, err := s.changelist(sse.Context(), nil)
			if err == nil {
				var html string
				html, err = s.renderTemplate("result_list", vm)
				if err == nil {
					err = sse.PatchElements(html, datastar.WithSelector("#result_list"), datastar.WithMode(datastar.ElementPatchModeOuter))
				}
			}
			if err != nil {
				s.logger.Warn("changelist stream", "error", err)
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
			}
		}
	}
}
