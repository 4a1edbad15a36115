package keywordlist

import (
	"testing"

	"github.com/ejv2/ytsearch/internal/domain"
)

func TestBuildOrdersByCountThenAlpha(t *testing.T) {
	videos := []domain.Video{
		{ID: "v1", Keywords: []string{"go", "concurrency"}},
		{ID: "v2", Keywords: []string{"go"}},
		{ID: "v3", Keywords: []string{"concurrency"}},
		{ID: "v4", Keywords: []string{"zig"}},
	}

	entries := Build(videos)
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}

	if entries[0].Keyword != "concurrency" || len(entries[0].Videos) != 2 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Keyword != "go" || len(entries[1].Videos) != 2 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].Keyword != "zig" {
		t.Fatalf("unexpected third entry: %+v", entries[2])
	}
}
