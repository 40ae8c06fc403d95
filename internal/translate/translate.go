// Package translate turns an index-based drag into an anchor-based tree mutation.
package translate

import (
	"errors"
	"fmt"
	"strings"

	"treesort/internal/model"
)

var (
	ErrNoop       = errors.New("move does not change position")
	ErrOutOfRange = errors.New("move index out of range")
	ErrNoAnchor   = errors.New("not enough siblings to anchor the move")
)

// Translate computes the mutation for a drag from oldIndex to newIndex.
//
// post is the sequence as the drag surface already reordered it, so the moved
// item is post[newIndex]. The first and last positions anchor on post[1]; the
// backend resolves those two tokens against the parent (or the root list) and
// does not depend on the anchor for them.
func Translate(oldIndex, newIndex int, post []model.Item) (model.Mutation, error) {
	n := len(post)
	if oldIndex == newIndex {
		return model.Mutation{}, ErrNoop
	}
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return model.Mutation{}, fmt.Errorf("%w: %d -> %d in %d items", ErrOutOfRange, oldIndex, newIndex, n)
	}
	if n < 2 {
		return model.Mutation{}, ErrNoAnchor
	}

	moved := post[newIndex]
	m := model.Mutation{
		MovedKey: moved.Key,
		Depth:    moved.Depth,
	}
	if moved.HasParent() {
		p := strings.TrimSpace(*moved.ParentKey)
		m.ParentKey = &p
	}

	switch {
	case newIndex == 0:
		m.Position = model.PositionFirst
		m.AnchorKey = post[1].Key
	case newIndex == n-1:
		m.Position = model.PositionLast
		m.AnchorKey = post[1].Key
	default:
		m.Position = model.PositionRightOf
		m.AnchorKey = post[newIndex-1].Key
	}
	return m, nil
}

// Apply returns the flat key order implied by m. The moved key is removed and
// reinserted; applying the same mutation again yields the same order.
// Unknown keys leave the order unchanged.
func Apply(order []string, m model.Mutation) []string {
	moved := strings.TrimSpace(m.MovedKey)
	rest := make([]string, 0, len(order))
	found := false
	for _, k := range order {
		if k == moved {
			found = true
			continue
		}
		rest = append(rest, k)
	}
	if !found {
		return append([]string(nil), order...)
	}

	insertAt := -1
	switch m.Position {
	case model.PositionFirst:
		insertAt = 0
	case model.PositionLast:
		insertAt = len(rest)
	case model.PositionRightOf, model.PositionLeftOf:
		for i, k := range rest {
			if k != m.AnchorKey {
				continue
			}
			insertAt = i
			if m.Position == model.PositionRightOf {
				insertAt = i + 1
			}
			break
		}
	}
	if insertAt < 0 {
		return append([]string(nil), order...)
	}

	out := make([]string, 0, len(order))
	out = append(out, rest[:insertAt]...)
	out = append(out, moved)
	out = append(out, rest[insertAt:]...)
	return out
}
