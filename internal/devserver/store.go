package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound   = errors.New("node not found")
	ErrDescendant = errors.New("cannot move a node below itself")
)

// Node is one stored tree node. ParentID is nil for roots.
type Node struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId,omitempty"`
	Rank     string  `json:"rank"`
	Title    string  `json:"title"`
}

// Entry is a node in flattened (depth-first) order. Depth is 1 for roots.
type Entry struct {
	Node
	Depth int `json:"depth"`
}

// MovePos is a tree move relative to a target node.
type MovePos string

const (
	MoveFirstChild MovePos = "first-child"
	MoveLastChild  MovePos = "last-child"
	MoveLeft       MovePos = "left"
	MoveRight      MovePos = "right"
)

// Store keeps the reference tree in SQLite.
type Store struct {
	db *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens (or creates) the node database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		parent_id TEXT REFERENCES nodes(id),
		rank TEXT NOT NULL,
		title TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS nodes_parent_rank ON nodes(parent_id, rank);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add appends a node as the last child of parentID (or the last root).
func (s *Store) Add(ctx context.Context, parentID *string, title string) (Node, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Node{}, err
	}
	defer func() { _ = tx.Rollback() }()

	all, err := loadAll(ctx, tx)
	if err != nil {
		return Node{}, err
	}
	if parentID != nil {
		if _, ok := all[*parentID]; !ok {
			return Node{}, fmt.Errorf("%w: parent %s", ErrNotFound, *parentID)
		}
	}
	sibs := children(all, parentID)
	lower := ""
	if len(sibs) > 0 {
		lower = sibs[len(sibs)-1].Rank
	}
	rank, err := rankBetween(lower, "")
	if err != nil {
		return Node{}, err
	}
	n := Node{ID: uuid.NewString(), ParentID: parentID, Rank: rank, Title: strings.TrimSpace(title)}
	if _, err := tx.ExecContext(ctx, `INSERT INTO nodes(id, parent_id, rank, title) VALUES(?, ?, ?, ?)`,
		n.ID, nullable(n.ParentID), n.Rank, n.Title); err != nil {
		return Node{}, err
	}
	if err := tx.Commit(); err != nil {
		return Node{}, err
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id string) (Node, error) {
	all, err := loadAll(ctx, s.db)
	if err != nil {
		return Node{}, err
	}
	n, ok := all[strings.TrimSpace(id)]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

// Flatten returns the tree in depth-first sibling-rank order. With a root id it
// returns only that node's descendants.
func (s *Store) Flatten(ctx context.Context, root *string) ([]Entry, error) {
	all, err := loadAll(ctx, s.db)
	if err != nil {
		return nil, err
	}
	depth := 1
	if root != nil {
		n, ok := all[*root]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, *root)
		}
		depth = depthOf(all, n) + 1
	}
	var out []Entry
	var walk func(parent *string, d int)
	walk = func(parent *string, d int) {
		for _, c := range children(all, parent) {
			out = append(out, Entry{Node: c, Depth: d})
			id := c.ID
			walk(&id, d+1)
		}
	}
	walk(root, depth)
	return out, nil
}

// Move places node relative to target.
func (s *Store) Move(ctx context.Context, nodeID, targetID string, pos MovePos) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	all, err := loadAll(ctx, tx)
	if err != nil {
		return err
	}
	node, ok := all[nodeID]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}
	target, ok := all[targetID]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNotFound, targetID)
	}

	var parent *string
	switch pos {
	case MoveFirstChild, MoveLastChild:
		id := target.ID
		parent = &id
	case MoveLeft, MoveRight:
		if target.ID == node.ID {
			return nil
		}
		parent = target.ParentID
	default:
		return fmt.Errorf("unknown move position %q", pos)
	}
	for p := parent; p != nil; {
		if *p == node.ID {
			return ErrDescendant
		}
		p = all[*p].ParentID
	}

	var sibs []Node
	for _, c := range children(all, parent) {
		if c.ID != node.ID {
			sibs = append(sibs, c)
		}
	}
	at := len(sibs)
	switch pos {
	case MoveFirstChild:
		at = 0
	case MoveLeft, MoveRight:
		for i, c := range sibs {
			if c.ID == target.ID {
				at = i
				if pos == MoveRight {
					at++
				}
				break
			}
		}
	}
	final := make([]Node, 0, len(sibs)+1)
	final = append(final, sibs[:at]...)
	final = append(final, node)
	final = append(final, sibs[at:]...)

	ranks, err := placeRanks(final, at)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE nodes SET parent_id = ? WHERE id = ?`, nullable(parent), node.ID); err != nil {
		return err
	}
	for id, r := range ranks {
		if _, err := tx.ExecContext(ctx, `UPDATE nodes SET rank = ? WHERE id = ?`, r, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func loadAll(ctx context.Context, q querier) (map[string]Node, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, parent_id, rank, title FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]Node{}
	for rows.Next() {
		var n Node
		var parent sql.NullString
		if err := rows.Scan(&n.ID, &parent, &n.Rank, &n.Title); err != nil {
			return nil, err
		}
		if parent.Valid {
			p := parent.String
			n.ParentID = &p
		}
		out[n.ID] = n
	}
	return out, rows.Err()
}

func children(all map[string]Node, parent *string) []Node {
	var out []Node
	for _, n := range all {
		switch {
		case parent == nil && n.ParentID == nil:
			out = append(out, n)
		case parent != nil && n.ParentID != nil && *n.ParentID == *parent:
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func depthOf(all map[string]Node, n Node) int {
	d := 1
	for p := n.ParentID; p != nil; p = all[*p].ParentID {
		d++
	}
	return d
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
