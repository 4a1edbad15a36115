// Package captiontext implements Caption Full-Text (design §4.H): it
// flattens a caption track into one normalised text plus an offset-to-
// caption index, caching both behind an inactivity timer.
package captiontext

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ejv2/ytsearch/internal/domain"
)

// defaultIdle is the default eviction delay after a track's full text
// goes unused (§4.H "default 1 s").
const defaultIdle = time.Second

// Flattened is one track's concatenated, normalised full text plus the
// offset-to-caption mapping described in §4.H's invariant.
type Flattened struct {
	FullText string
	// offsets is sorted ascending; atIndex holds the Caption that
	// originated the character at the matching offset.
	offsets []int
	atIndex []domain.Caption
}

// CaptionAt returns the caption that originated the character at text
// offset i: the entry whose offset is the greatest one <= i.
func (f Flattened) CaptionAt(i int) (domain.Caption, bool) {
	idx := f.indexAt(i)
	if idx < 0 {
		return domain.Caption{}, false
	}
	return f.atIndex[idx], true
}

// indexAt returns the offsets/atIndex slot whose caption originated the
// character at text offset i, or -1 if i precedes every caption.
func (f Flattened) indexAt(i int) int {
	if len(f.offsets) == 0 {
		return -1
	}
	return sort.Search(len(f.offsets), func(j int) bool { return f.offsets[j] > i }) - 1
}

// Span locates the contiguous run of captions covering the flattened
// range [start, end] and returns the full text of that run (the whole
// covering captions, not clipped to start/end), the offset within
// FullText where that run begins, and the first covering caption's
// start time - the playback offset for a caption-track match (§4.J
// step 3).
func (f Flattened) Span(start, end int) (text string, spanStart, at int, ok bool) {
	lo := f.indexAt(start)
	if lo < 0 {
		lo = 0
	}
	hi := f.indexAt(end)
	if hi < lo {
		hi = lo
	}
	if hi >= len(f.atIndex) {
		hi = len(f.atIndex) - 1
	}
	if lo >= len(f.atIndex) {
		return "", 0, 0, false
	}

	spanStart = f.offsets[lo]
	spanEnd := len(f.FullText)
	if hi+1 < len(f.offsets) {
		spanEnd = f.offsets[hi+1] - 1
	}
	if spanEnd < spanStart {
		spanEnd = spanStart
	}

	return f.FullText[spanStart:spanEnd], spanStart, f.atIndex[lo].At, true
}

func flatten(captions []domain.Caption) Flattened {
	var sb strings.Builder
	var offsets []int
	var atIndex []domain.Caption

	for _, c := range captions {
		norm := c.Normalized()
		if norm == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		offsets = append(offsets, sb.Len())
		atIndex = append(atIndex, c)
		sb.WriteString(norm)
	}

	return Flattened{FullText: sb.String(), offsets: offsets, atIndex: atIndex}
}

type entry struct {
	flattened Flattened
	timer     *time.Timer
}

// Cache lazily flattens caption tracks and evicts them after an
// inactivity timeout. Thread-safe: a single mutex guards every track's
// entry; there is no separate lock per track.
type Cache struct {
	idle time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// Key identifies a track within the cache: its owning video and
// language name, since language names are only unique within a video.
type Key struct {
	VideoID  domain.VideoId
	Language string
}

func (k Key) string() string { return string(k.VideoID) + "\x00" + k.Language }

func New(idle time.Duration) *Cache {
	if idle <= 0 {
		idle = defaultIdle
	}
	return &Cache{idle: idle, entries: make(map[string]*entry)}
}

// Get returns the flattened text for a track, computing and caching it
// on a miss, and refreshes its eviction timer.
func (c *Cache) Get(key Key, track domain.CaptionTrack) Flattened {
	k := key.string()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok {
		e.timer.Reset(c.idle)
		return e.flattened
	}

	flattened := flatten(track.Captions)
	e := &entry{flattened: flattened}
	e.timer = time.AfterFunc(c.idle, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[k]; ok && cur == e {
			delete(c.entries, k)
		}
	})
	c.entries[k] = e

	return flattened
}

// Len reports the number of cached tracks, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
