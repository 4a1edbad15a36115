package textindex

import (
	"testing"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/indexstore"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := indexstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open index store: %v", err)
	}
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	return NewManager(store, kv)
}

func TestAddAndSearchFindsVideo(t *testing.T) {
	m := newTestManager(t)
	sh, err := m.Obtain("scope.0")
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	defer m.Release("scope.0")

	doc := Document{
		Video:    domain.Video{ID: "v1", Title: "Gophers build channels", Description: "A talk about concurrency"},
		FullText: map[string]string{"en": "we discuss goroutines and channels here"},
	}
	if err := sh.Add(doc); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := sh.Search("channels", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].VideoID != "v1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	langs := sh.Languages()
	if len(langs) != 1 || langs[0] != "en" {
		t.Fatalf("expected [en], got %v", langs)
	}
}

func TestSearchRestrictsToCandidates(t *testing.T) {
	m := newTestManager(t)
	sh, err := m.Obtain("scope.1")
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	defer m.Release("scope.1")

	for _, v := range []domain.Video{
		{ID: "v1", Title: "cats and dogs"},
		{ID: "v2", Title: "cats and birds"},
	} {
		if err := sh.Add(Document{Video: v}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	hits, err := sh.Search("cats", []domain.VideoId{"v2"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].VideoID != "v2" {
		t.Fatalf("expected only v2, got %+v", hits)
	}
}

func TestBatchCommitPersists(t *testing.T) {
	m := newTestManager(t)
	sh, err := m.Obtain("scope.2")
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	defer m.Release("scope.2")

	sh.BeginBatch()
	if err := sh.Add(Document{Video: domain.Video{ID: "v1", Title: "batched video"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := sh.CommitBatch(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hits, err := sh.Search("batched", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after commit, got %d", len(hits))
	}
}
