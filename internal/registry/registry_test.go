package registry

import (
	"errors"
	"reflect"
	"testing"

	"treesort/internal/model"
)

func ptr(s string) *string { return &s }

func rowsABCD() []model.Row {
	return []model.Row{
		{Key: "a", Depth: 1, Title: "A", Href: "/a/change/", ListURL: "/a/list/", Stripe: model.StripeEven},
		{Key: "b", Depth: 1, Title: "B", Href: "/b/change/", ListURL: "/b/list/", Stripe: model.StripeOdd},
		{Key: "c", Depth: 1, Title: "C", Href: "/c/change/", ListURL: "/c/list/", Stripe: model.StripeEven},
		{Key: "d", Depth: 1, Title: "D", Href: "/d/change/", ListURL: "/d/list/", Stripe: model.StripeOdd},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	rows := rowsABCD()
	rows[2].ParentKey = ptr("  ")
	rows = append(rows, model.Row{Key: ""}, model.Row{Key: "a"})

	r := Build(rows, Options{DetailSource: model.DetailFromListURL})
	if r.Len() != 4 {
		t.Fatalf("expected empty and duplicate keys skipped; got %d items", r.Len())
	}
	items := r.Items()
	for i, it := range items {
		if it.Index != i {
			t.Fatalf("item %s index %d at position %d", it.Key, it.Index, i)
		}
	}
	if items[1].DetailURL != "/b/list/" {
		t.Fatalf("expected list url as detail target, got %q", items[1].DetailURL)
	}
	if items[2].ParentKey != nil {
		t.Fatalf("blank parent must be absent, got %q", *items[2].ParentKey)
	}
	if !r.Settled() {
		t.Fatalf("freshly built registry must be settled")
	}

	byHref := Build(rowsABCD(), Options{DetailSource: model.DetailFromHref})
	if it, _ := byHref.Lookup("c"); it.DetailURL != "/c/change/" {
		t.Fatalf("expected href as detail target, got %q", it.DetailURL)
	}
}

func TestBuild_EmptyRows(t *testing.T) {
	t.Parallel()

	r := Build(nil, Options{})
	if r.Len() != 0 || len(r.Items()) != 0 {
		t.Fatalf("expected empty registry")
	}
	if _, err := r.Reindex(nil); err != nil {
		t.Fatalf("reindexing an empty registry: %v", err)
	}
}

func TestReindex_NoChangeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, reconcile := range []bool{true, false} {
		r := Build(rowsABCD(), Options{ReconcileStripes: reconcile})
		before := r.Items()
		changes, err := r.Reindex(r.Keys())
		if err != nil {
			t.Fatalf("Reindex: %v", err)
		}
		if len(changes) != 0 {
			t.Fatalf("expected no stripe changes, got %+v", changes)
		}
		if after := r.Items(); !reflect.DeepEqual(before, after) {
			t.Fatalf("round-trip changed items:\n before: %+v\n after:  %+v", before, after)
		}
	}
}

func TestReindex_StripesAfterMove(t *testing.T) {
	t.Parallel()

	r := Build(rowsABCD(), Options{ReconcileStripes: true})
	// a dragged to index 2: b c a d
	changes, err := r.Reindex([]string{"b", "c", "a", "d"})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	// a keeps row1 (index 0 -> 2) and d keeps row2, so only b and c flip.
	want := []StripeChange{
		{Key: "b", Index: 0, From: model.StripeOdd, To: model.StripeEven},
		{Key: "c", Index: 1, From: model.StripeEven, To: model.StripeOdd},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("stripe changes:\n got: %+v\nwant: %+v", changes, want)
	}
	items := r.Items()
	gotKeys := []string{items[0].Key, items[1].Key, items[2].Key, items[3].Key}
	if !reflect.DeepEqual(gotKeys, []string{"b", "c", "a", "d"}) {
		t.Fatalf("order: %v", gotKeys)
	}
	for i, it := range items {
		if it.Index != i || it.Stripe != model.StripeFor(i) {
			t.Fatalf("item %s: index=%d stripe=%s at %d", it.Key, it.Index, it.Stripe, i)
		}
	}
	if it, _ := r.Lookup("a"); it.Index != 2 {
		t.Fatalf("lookup after reindex: %+v", it)
	}
}

func TestReindex_WithoutStripeReconcile(t *testing.T) {
	t.Parallel()

	r := Build(rowsABCD(), Options{ReconcileStripes: false})
	changes, err := r.Reindex([]string{"d", "a", "b", "c"})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no stripe changes without reconcile, got %+v", changes)
	}
	if it, _ := r.Lookup("d"); it.Index != 0 || it.Stripe != model.StripeOdd {
		t.Fatalf("expected d index 0 with untouched stripe, got %+v", it)
	}
}

func TestReindex_MismatchLeavesRegistryUntouched(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"short":     {"a", "b", "c"},
		"unknown":   {"a", "b", "c", "x"},
		"duplicate": {"a", "b", "c", "c"},
	}
	for name, order := range cases {
		r := Build(rowsABCD(), Options{ReconcileStripes: true})
		before := r.Items()
		if _, err := r.Reindex(order); !errors.Is(err, ErrOrderMismatch) {
			t.Fatalf("%s: expected ErrOrderMismatch, got %v", name, err)
		}
		if !reflect.DeepEqual(before, r.Items()) {
			t.Fatalf("%s: registry changed on failed reindex", name)
		}
	}
}
