package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"treesort/internal/docs"
	"treesort/internal/engine"
	"treesort/internal/model"
	"treesort/internal/surface"
	"treesort/internal/syncclient"
)

type (
	// notifyMsg carries a user-visible error from the engine's notifier.
	notifyMsg   struct{ text string }
	moveDoneMsg struct{ res engine.Result }
	openDoneMsg struct {
		key string
		err error
	}
)

// StatusSink is a notifier that delivers messages to the running program's status line.
type StatusSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *StatusSink) Notify(msg string) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(notifyMsg{text: msg})
	}
}

func (s *StatusSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

type grab struct {
	key  string
	from int
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusError
)

// Model is the drag surface. The row list shown is the DOM order plus the preview of a grab in progress.
type Model struct {
	ctx     context.Context
	adapter *surface.Adapter
	title   string

	keys keyMap
	help help.Model

	width  int
	height int

	cursor  int
	grabbed *grab
	preview []model.Row
	pending int

	status     string
	statusKind statusKind

	showHelp bool
	helpView viewport.Model
}

func newModel(ctx context.Context, a *surface.Adapter, title string) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	m := Model{
		ctx:     ctx,
		adapter: a,
		title:   strings.TrimSpace(title),
		keys:    defaultKeyMap(),
		help:    help.New(),
		width:   80,
		height:  24,
	}
	if !a.Attached() {
		m.status = "nothing to sort on this page"
	}
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) rows() []model.Row {
	if m.grabbed != nil {
		return m.preview
	}
	if d := m.adapter.DOM(); d != nil {
		return d.Rows()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		if m.showHelp {
			m.helpView = m.newHelpView()
		}
		return m, nil

	case notifyMsg:
		m.status, m.statusKind = msg.text, statusError
		return m, nil

	case moveDoneMsg:
		m.pending--
		res := msg.res
		switch {
		case res.Skipped:
		case res.Err == nil:
			m.status, m.statusKind = "moved "+res.Mutation.String(), statusOK
		case errors.Is(res.Err, syncclient.ErrTransport), errors.Is(res.Err, syncclient.ErrApplication):
			m.status, m.statusKind = syncclient.UserMessage(res.Err), statusError
		default:
			m.status, m.statusKind = res.Err.Error(), statusError
		}
		return m, nil

	case openDoneMsg:
		if msg.err != nil {
			m.status, m.statusKind = msg.err.Error(), statusError
		} else {
			m.status, m.statusKind = "opened "+msg.key, statusInfo
		}
		return m, nil

	case tea.KeyMsg:
		if m.showHelp {
			return m.updateHelp(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Cancel), msg.String() == "q":
		m.showHelp = false
		return m, nil
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.helpView, cmd = m.helpView.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.rows())
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.helpView = m.newHelpView()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			if m.grabbed != nil {
				m.preview[m.cursor], m.preview[m.cursor-1] = m.preview[m.cursor-1], m.preview[m.cursor]
			}
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < n-1 {
			if m.grabbed != nil {
				m.preview[m.cursor], m.preview[m.cursor+1] = m.preview[m.cursor+1], m.preview[m.cursor]
			}
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.grabbed != nil {
			m.cursor = m.grabbed.from
			m.grabbed = nil
			m.preview = nil
			m.status, m.statusKind = "move cancelled", statusInfo
		}
		return m, nil

	case key.Matches(msg, m.keys.Grab):
		if !m.adapter.Attached() || n == 0 {
			return m, nil
		}
		if m.grabbed == nil {
			rows := m.rows()
			m.grabbed = &grab{key: rows[m.cursor].Key, from: m.cursor}
			m.preview = rows
			m.status, m.statusKind = "moving "+rows[m.cursor].Title, statusInfo
			return m, nil
		}
		return m.drop()

	case key.Matches(msg, m.keys.Open):
		if m.grabbed != nil || n == 0 {
			return m, nil
		}
		k := m.rows()[m.cursor].Key
		a := m.adapter
		return m, func() tea.Msg {
			return openDoneMsg{key: k, err: a.Activate(k)}
		}
	}
	return m, nil
}

// drop applies the grabbed move to the DOM right away and commits it in the background.
func (m Model) drop() (tea.Model, tea.Cmd) {
	g := m.grabbed
	to := m.cursor
	m.grabbed = nil
	m.preview = nil
	if g.from == to {
		return m, nil
	}
	order, err := m.adapter.DOM().Drag(g.from, to)
	if err != nil {
		m.status, m.statusKind = err.Error(), statusError
		return m, nil
	}
	m.pending++
	m.status, m.statusKind = "saving…", statusInfo
	ctx, a, from := m.ctx, m.adapter, g.from
	return m, func() tea.Msg {
		return moveDoneMsg{res: a.Dropped(ctx, from, to, order)}
	}
}

func (m Model) newHelpView() viewport.Model {
	w, h := m.width, m.height-2
	if w < 20 {
		w = 20
	}
	if h < 5 {
		h = 5
	}
	vp := viewport.New(w, h)
	body, _ := docs.Get("keys")
	vp.SetContent(RenderMarkdown(body, w-2))
	return vp
}

func (m Model) View() string {
	if m.showHelp {
		return m.helpView.View() + "\n" + statusStyle.Render("? or esc to close")
	}

	var b strings.Builder
	title := m.title
	if title == "" {
		title = "treesort"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	rows := m.rows()
	start, end := m.window(len(rows))
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(i, rows[i]))
		b.WriteString("\n")
	}
	if len(rows) == 0 {
		b.WriteString(statusStyle.Render("(no rows)"))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// window returns the visible row range that keeps the cursor on screen.
func (m Model) window(n int) (int, int) {
	visible := m.height - 4
	if visible < 1 || visible >= n {
		return 0, n
	}
	start := m.cursor - visible/2
	if start < 0 {
		start = 0
	}
	if start+visible > n {
		start = n - visible
	}
	return start, start + visible
}

func (m Model) renderRow(i int, r model.Row) string {
	depth := r.Depth
	if depth < 1 {
		depth = 1
	}
	link := " "
	if _, ok := m.adapter.DetailLink(r.Key); ok {
		link = "↗"
	}
	line := fmt.Sprintf("%s %s%s %s", handleStyle.Render("⠿"), strings.Repeat("  ", depth-1), r.Title, link)
	line = xansi.Truncate(line, m.width-2, "…")
	pad := m.width - lipgloss.Width(line) - 2
	if pad > 0 {
		line += strings.Repeat(" ", pad)
	}

	style := styleForStripe(r.Stripe)
	switch {
	case m.grabbed != nil && r.Key == m.grabbed.key:
		style = grabbedStyle
	case i == m.cursor:
		style = cursorStyle
	}
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}
	return marker + style.Render(line)
}

func (m Model) renderStatus() string {
	s := m.status
	if m.pending > 0 && s == "" {
		s = "saving…"
	}
	switch m.statusKind {
	case statusError:
		return statusErrStyle.Render(s)
	case statusOK:
		return statusOkStyle.Render(s)
	default:
		return statusStyle.Render(s)
	}
}
