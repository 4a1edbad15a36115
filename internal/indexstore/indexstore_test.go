package indexstore

import (
	"testing"

	"github.com/blevesearch/bleve/v2"
)

func TestBuildGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	h, err := s.Build("scope.0", bleve.NewIndexMapping())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := h.Index.Index("v1", map[string]string{"title": "hello world"}); err != nil {
		t.Fatalf("index: %v", err)
	}
	h.MarkDirty()
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	h2, ok, err := s.Get("scope.0")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	defer h2.Close()

	count, err := h2.Index.DocCount()
	if err != nil {
		t.Fatalf("doc count: %v", err)
	}
	if count != 1 {
		t.Fatalf("want 1 doc, got %d", count)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, ok, err := s.Get("nonexistent.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestDoubleAcquireErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	h, err := s.Build("scope.1", bleve.NewIndexMapping())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer h.Close()

	if _, err := s.Build("scope.1", bleve.NewIndexMapping()); err == nil {
		t.Fatal("expected error acquiring a second live handle")
	}
}
