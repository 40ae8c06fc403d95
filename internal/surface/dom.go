package surface

import (
	"fmt"
	"sync"

	"treesort/internal/model"
)

// DOM is the rendered row list as the drag library sees it. Its order runs
// ahead of the registry while a move is in flight.
type DOM struct {
	mu   sync.RWMutex
	rows []model.Row
}

func NewDOM(rows []model.Row) *DOM {
	return &DOM{rows: append([]model.Row(nil), rows...)}
}

func (d *DOM) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

func (d *DOM) Rows() []model.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.Row(nil), d.rows...)
}

func (d *DOM) Order() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Key
	}
	return out
}

// Drag moves the row at oldIndex to newIndex and returns the new key order.
func (d *DOM) Drag(oldIndex, newIndex int) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.rows)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return nil, fmt.Errorf("drag %d -> %d outside %d rows", oldIndex, newIndex, n)
	}
	if oldIndex != newIndex {
		row := d.rows[oldIndex]
		d.rows = append(d.rows[:oldIndex], d.rows[oldIndex+1:]...)
		d.rows = append(d.rows[:newIndex], append([]model.Row{row}, d.rows[newIndex:]...)...)
	}
	out := make([]string, n)
	for i, r := range d.rows {
		out[i] = r.Key
	}
	return out, nil
}

// SetStripe updates the stripe class of the row with key.
func (d *DOM) SetStripe(key string, s model.Stripe) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rows {
		if d.rows[i].Key == key {
			d.rows[i].Stripe = s
			return true
		}
	}
	return false
}

func (d *DOM) IndexOf(key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i, r := range d.rows {
		if r.Key == key {
			return i
		}
	}
	return -1
}
