package dispatch

import (
	"testing"

	"github.com/documentdb/gatewaygw/internal/backend"
)

func TestExtractCursorFirstPageRequiresFourColumns(t *testing.T) {
	if _, ok := extractCursorFirstPage(backend.Row{[]byte("doc")}); ok {
		t.Fatal("expected a 1-column row to report no cursor info")
	}

	row := backend.Row{[]byte("doc"), []byte("continuation"), []byte{1}, []byte("99")}
	page, ok := extractCursorFirstPage(row)
	if !ok {
		t.Fatal("expected a 4-column row to be recognized")
	}
	if !page.HasContinuation || string(page.Continuation) != "continuation" {
		t.Fatalf("unexpected continuation: %+v", page)
	}
	if !page.Persist {
		t.Fatal("expected persist to be true")
	}
	if page.CursorID != 99 {
		t.Fatalf("unexpected cursor id: %d", page.CursorID)
	}
}

func TestExtractCursorFirstPageNoContinuationMeansExhausted(t *testing.T) {
	row := backend.Row{[]byte("doc"), nil, []byte{0}, []byte("99")}
	page, ok := extractCursorFirstPage(row)
	if !ok {
		t.Fatal("expected a 4-column row to be recognized")
	}
	if page.HasContinuation {
		t.Fatal("expected a nil continuation column to mean no more pages")
	}
}

func TestExtractGetMoreContinuation(t *testing.T) {
	if _, ok := extractGetMoreContinuation(backend.Row{[]byte("doc")}); ok {
		t.Fatal("expected a 1-column row to report no continuation")
	}
	if _, ok := extractGetMoreContinuation(backend.Row{[]byte("doc"), nil}); ok {
		t.Fatal("expected a nil second column to mean cursor exhausted")
	}
	cont, ok := extractGetMoreContinuation(backend.Row{[]byte("doc"), []byte("more")})
	if !ok || string(cont) != "more" {
		t.Fatalf("unexpected continuation: %v, %v", cont, ok)
	}
}
