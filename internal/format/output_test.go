package format

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type rowsOut struct{}

func (rowsOut) Columns() []string { return []string{"key", "title"} }
func (rowsOut) Cells() [][]string { return [][]string{{"1", "Home"}, {"2", "About"}} }

func TestWrite_JSON(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	if err := Write(&b, map[string]any{"data": []int{1}}, "", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := b.String(); got != "{\"data\":[1]}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWrite_Table(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	var b bytes.Buffer
	if err := Write(&b, rowsOut{}, "table", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := b.String()
	for _, want := range []string{"key", "title", "Home", "About"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWrite_Errors(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	if err := Write(&b, map[string]any{}, "table", false); !errors.Is(err, ErrNotTabular) {
		t.Fatalf("expected ErrNotTabular, got %v", err)
	}
	if err := Write(&b, map[string]any{}, "edn", false); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
