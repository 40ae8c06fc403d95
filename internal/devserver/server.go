// Package devserver is a reference changelist backend: it renders the tree
// admin markup and accepts the ajax move requests the engine sends.
package devserver

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/cors"

	"treesort/internal/config"
	"treesort/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// FormErrorMessage is the error string the update view answers for rejected forms.
const FormErrorMessage = "There seams to be a problem with your list"

type Options struct {
	CSRFToken      string
	CSRFField      string
	Variant        config.Variant
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	store  *Store
	opts   Options
	tmpl   *template.Template
	hub    *hub
	logger *slog.Logger
}

func New(st *Store, opts Options) (*Server, error) {
	if st == nil {
		return nil, errors.New("devserver: nil store")
	}
	v, err := config.ParseVariant(string(opts.Variant))
	if err != nil {
		return nil, err
	}
	opts.Variant = v
	if strings.TrimSpace(opts.CSRFField) == "" {
		opts.CSRFField = config.DefaultCSRFField
	}
	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"stripe": func(i int) string { return string(model.StripeFor(i)) },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, opts: opts, tmpl: tmpl, hub: newHub(), logger: logger}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /nodes/{$}", s.handleChangelist)
	mux.HandleFunc("GET /nodes/events", s.handleEvents)
	mux.HandleFunc("GET /nodes/{id}/list/", s.handleChangelist)
	mux.HandleFunc("GET /nodes/{id}/change/", s.handleChange)
	mux.HandleFunc("POST /update/", s.handleUpdate)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-CSRFToken", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type rowVM struct {
	ID        string
	ParentID  string
	Depth     int
	Title     string
	ChangeURL string
	ListURL   string
}

type changelistVM struct {
	Title     string
	Variant   config.Variant
	CSRFToken string
	EventsURL string
	Rows      []rowVM
}

func (s *Server) changelist(ctx context.Context, root *string) (changelistVM, error) {
	entries, err := s.store.Flatten(ctx, root)
	if err != nil {
		return changelistVM{}, err
	}
	vm := changelistVM{
		Title:     "Select node to change",
		Variant:   s.opts.Variant,
		CSRFToken: s.opts.CSRFToken,
		EventsURL: "/nodes/events",
	}
	if root != nil {
		n, err := s.store.Get(ctx, *root)
		if err != nil {
			return changelistVM{}, err
		}
		vm.Title = n.Title
	}
	for _, e := range entries {
		row := rowVM{
			ID:        e.ID,
			Depth:     e.Depth,
			Title:     e.Title,
			ChangeURL: "/nodes/" + e.ID + "/change/",
			ListURL:   "/nodes/" + e.ID + "/list/",
		}
		if e.ParentID != nil {
			row.ParentID = *e.ParentID
		}
		vm.Rows = append(vm.Rows, row)
	}
	return vm, nil
}

func (s *Server) handleChangelist(w http.ResponseWriter, r *http.Request) {
	var root *string
	if id := strings.TrimSpace(r.PathValue("id")); id != "" {
		root = &id
	}
	vm, err := s.changelist(r.Context(), root)
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeHTMLTemplate(w, "changelist", vm)
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeHTMLTemplate(w, "change", map[string]string{
		"Title":   n.Title,
		"ListURL": "/nodes/" + n.ID + "/list/",
	})
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

type updateForm struct {
	Depth  string
	Pos    string
	Node   string
	Target string
	Parent string
}

func (s *Server) validateForm(ctx context.Context, f *updateForm) error {
	exists := func(v any) error {
		id, _ := v.(string)
		if strings.TrimSpace(id) == "" {
			return nil
		}
		_, err := s.store.Get(ctx, id)
		return err
	}
	return validation.ValidateStruct(f,
		validation.Field(&f.Depth, validation.Required, is.Int),
		validation.Field(&f.Pos, validation.Required, validation.In("left", "right", "first", "last")),
		validation.Field(&f.Node, validation.Required, validation.By(exists)),
		validation.Field(&f.Target, validation.Required, validation.By(exists)),
		validation.Field(&f.Parent, validation.By(exists)),
	)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		http.Error(w, "Not an XMLHttpRequest", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.csrfOK(r) {
		http.Error(w, "Missing permissions to perform this request", http.StatusForbidden)
		return
	}

	f := updateForm{
		Depth:  strings.TrimSpace(r.PostForm.Get("depth")),
		Pos:    strings.TrimSpace(r.PostForm.Get("pos")),
		Node:   strings.TrimSpace(r.PostForm.Get("node")),
		Target: strings.TrimSpace(r.PostForm.Get("target")),
		Parent: strings.TrimSpace(r.PostForm.Get("parent")),
	}
	log := s.logger.With("request_id", r.Header.Get("X-Request-ID"), "node", f.Node, "pos", f.Pos, "target", f.Target)
	if err := s.validateForm(r.Context(), &f); err != nil {
		log.Warn("update rejected", "error", err)
		writeJSON(w, map[string]string{"message": "error", "error": FormErrorMessage})
		return
	}
	if err := s.apply(r.Context(), f); err != nil {
		log.Warn("update failed", "error", err)
		writeJSON(w, map[string]string{"message": "error", "error": FormErrorMessage})
		return
	}
	log.Info("node moved")
	s.hub.broadcast()
	writeJSON(w, map[string]string{"message": "ok"})
}

// apply maps the ajax form onto a tree move. first/last with a parent land at
// the edge of the parent's children; without one they land at the edge of the roots.
func (s *Server) apply(ctx context.Context, f updateForm) error {
	switch f.Pos {
	case "first", "last":
		if f.Parent != "" {
			pos := MoveFirstChild
			if f.Pos == "last" {
				pos = MoveLastChild
			}
			return s.store.Move(ctx, f.Node, f.Parent, pos)
		}
		roots, err := s.store.Flatten(ctx, nil)
		if err != nil {
			return err
		}
		var first, last string
		for _, e := range roots {
			if e.Depth != 1 {
				continue
			}
			if first == "" {
				first = e.ID
			}
			last = e.ID
		}
		if f.Pos == "first" {
			return s.store.Move(ctx, f.Node, first, MoveLeft)
		}
		return s.store.Move(ctx, f.Node, last, MoveRight)
	default:
		return s.store.Move(ctx, f.Node, f.Target, MovePos(f.Pos))
	}
}

func (s *Server) csrfOK(r *http.Request) bool {
	want := s.opts.CSRFToken
	if want == "" {
		return true
	}
	got := r.PostForm.Get(s.opts.CSRFField)
	if got == "" {
		got = r.Header.Get("X-CSRFToken")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
