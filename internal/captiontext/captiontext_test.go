package captiontext

import (
	"testing"
	"time"

	"github.com/ejv2/ytsearch/internal/domain"
)

func TestFlattenJoinsAndNormalizes(t *testing.T) {
	track := domain.CaptionTrack{
		LanguageName: "en",
		Captions: []domain.Caption{
			{At: 0, Text: "hello   world"},
			{At: 5, Text: "  second cue  "},
		},
	}

	c := New(time.Minute)
	f := c.Get(Key{VideoID: "v1", Language: "en"}, track)

	want := "hello world second cue"
	if f.FullText != want {
		t.Fatalf("want %q, got %q", want, f.FullText)
	}

	cap0, ok := f.CaptionAt(0)
	if !ok || cap0.At != 0 {
		t.Fatalf("caption at 0: ok=%v cap=%+v", ok, cap0)
	}
	cap1, ok := f.CaptionAt(len("hello world") + 1)
	if !ok || cap1.At != 5 {
		t.Fatalf("caption at second cue: ok=%v cap=%+v", ok, cap1)
	}
}

func TestSpanLocatesCoveringCaptions(t *testing.T) {
	track := domain.CaptionTrack{
		Captions: []domain.Caption{
			{At: 0, Text: "hello world"},
			{At: 5, Text: "second cue"},
			{At: 10, Text: "third cue"},
		},
	}

	c := New(time.Minute)
	f := c.Get(Key{VideoID: "v1", Language: "en"}, track)

	text, spanStart, at, ok := f.Span(0, 3)
	if !ok {
		t.Fatal("expected a span covering the first caption")
	}
	if text != "hello world" || spanStart != 0 || at != 0 {
		t.Fatalf("unexpected span: text=%q spanStart=%d at=%d", text, spanStart, at)
	}

	secondStart := len("hello world") + 1
	text, spanStart, at, ok = f.Span(secondStart, secondStart+2)
	if !ok {
		t.Fatal("expected a span covering the second caption")
	}
	if text != "second cue" || spanStart != secondStart || at != 5 {
		t.Fatalf("unexpected span: text=%q spanStart=%d at=%d", text, spanStart, at)
	}
}

func TestEntryEvictsAfterIdle(t *testing.T) {
	track := domain.CaptionTrack{Captions: []domain.Caption{{At: 0, Text: "hi"}}}
	c := New(10 * time.Millisecond)
	c.Get(Key{VideoID: "v1", Language: "en"}, track)

	if c.Len() != 1 {
		t.Fatalf("want 1 cached entry, got %d", c.Len())
	}

	time.Sleep(50 * time.Millisecond)
	if c.Len() != 0 {
		t.Fatalf("want entry evicted, got %d", c.Len())
	}
}
