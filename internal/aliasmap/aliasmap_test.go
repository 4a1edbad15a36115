package aliasmap

import (
	"testing"
	"time"

	"github.com/ejv2/ytsearch/internal/kvstore"
)

func TestStoreLookupCaseInsensitive(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	m, err := New(kv, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	m.Store(Handle, "GoLang", "UC123")

	id, found := m.Lookup(Handle, "golang")
	if !found || id != "UC123" {
		t.Fatalf("lookup: found=%v id=%v", found, id)
	}
}

func TestStoreConfirmedNotFound(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	m, err := New(kv, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	m.Store(Slug, "ghost", "")

	id, found := m.Lookup(Slug, "ghost")
	if !found || id != "" {
		t.Fatalf("expected confirmed-absent entry, got found=%v id=%v", found, id)
	}

	_, found = m.Lookup(Slug, "never-looked-up")
	if found {
		t.Fatal("expected miss for never-looked-up alias")
	}
}

func TestFlushPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	kv, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	m, err := New(kv, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Store(ID, "UC999", "UC999")
	m.Flush()

	kv2, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("reopen kv: %v", err)
	}
	m2, err := New(kv2, time.Hour)
	if err != nil {
		t.Fatalf("new from persisted: %v", err)
	}

	channelID, found := m2.Lookup(ID, "uc999")
	if !found || channelID != "UC999" {
		t.Fatalf("expected persisted entry, got found=%v id=%v", found, channelID)
	}
}
