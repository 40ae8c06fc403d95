package devserver

import (
	"context"
	"testing"
)

func TestSeedDemo_OnlyFillsEmptyStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	added, err := SeedDemo(ctx, st)
	if err != nil || !added {
		t.Fatalf("first SeedDemo: added=%v err=%v", added, err)
	}
	entries, err := st.Flatten(ctx, nil)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(entries) != 11 {
		t.Fatalf("expected 11 demo nodes, got %d", len(entries))
	}
	if entries[0].Title != "Products" || entries[0].Depth != 1 || entries[2].Title != "Mechanical" || entries[2].Depth != 3 {
		t.Fatalf("unexpected outline head: %+v %+v", entries[0], entries[2])
	}

	added, err = SeedDemo(ctx, st)
	if err != nil || added {
		t.Fatalf("second SeedDemo: added=%v err=%v", added, err)
	}
}
