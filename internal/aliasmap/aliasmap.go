// Package aliasmap implements the Channel Alias Map (design §4.M): a
// process-wide, case-insensitive cache of channel-alias -> channel-id
// resolutions, persisted with debounced writes.
package aliasmap

import (
	"strings"
	"sync"
	"time"

	"github.com/ejv2/ytsearch/internal/kvstore"
)

// AliasType distinguishes the kind of alias an entry resolves, since
// handle/slug/user selectors are each validated differently upstream.
type AliasType int

const (
	Handle AliasType = iota
	Slug
	User
	ID
)

func (t AliasType) String() string {
	switch t {
	case Handle:
		return "handle"
	case Slug:
		return "slug"
	case User:
		return "user"
	case ID:
		return "id"
	default:
		return "unknown"
	}
}

type key struct {
	Type  AliasType
	Value string
}

func normalize(value string) string { return strings.ToLower(value) }

// entry records a resolution. ChannelID == "" with Found == true is a
// confirmed "not found" (§3 "a null channel_id records a confirmed
// 'not found'"), distinct from never having looked it up at all.
type entry struct {
	ChannelID string
	Found     bool
}

// Map is the in-memory, mutex-guarded alias cache with debounced
// persistence to the KV Store.
type Map struct {
	kv       *kvstore.Store
	debounce time.Duration

	mu      sync.Mutex
	entries map[key]entry
	timer   *time.Timer
	dirty   bool
}

const storeKey = "aliasmap"

type persisted struct {
	// Entries is a flat slice since map keys aren't stable across gob
	// encodings of non-comparable-by-default structs; encoding/json
	// would choke on a struct map key too, so this is the simplest
	// portable shape.
	Entries []persistedEntry
}

type persistedEntry struct {
	Type      AliasType
	Value     string
	ChannelID string
	Found     bool
}

func New(kv *kvstore.Store, debounce time.Duration) (*Map, error) {
	m := &Map{kv: kv, debounce: debounce, entries: make(map[key]entry)}

	var p persisted
	ok, err := kv.Get(storeKey, &p)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, e := range p.Entries {
			m.entries[key{Type: e.Type, Value: normalize(e.Value)}] = entry{ChannelID: e.ChannelID, Found: e.Found}
		}
	}

	return m, nil
}

// Lookup returns the cached channel id for (aliasType, value), and
// whether the alias has been resolved at all (found may be true with
// an empty channel id, meaning confirmed absent).
func (m *Map) Lookup(aliasType AliasType, value string) (channelID string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key{Type: aliasType, Value: normalize(value)}]
	if !ok {
		return "", false
	}
	return e.ChannelID, e.Found
}

// Store records a resolution (or confirmed absence, if channelID is
// empty) and schedules a debounced persist.
func (m *Map) Store(aliasType AliasType, value, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key{Type: aliasType, Value: normalize(value)}] = entry{ChannelID: channelID, Found: true}
	m.dirty = true

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.flush)
}

func (m *Map) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return
	}

	p := persisted{Entries: make([]persistedEntry, 0, len(m.entries))}
	for k, e := range m.entries {
		p.Entries = append(p.Entries, persistedEntry{Type: k.Type, Value: k.Value, ChannelID: e.ChannelID, Found: e.Found})
	}

	if err := m.kv.Set(storeKey, p); err == nil {
		m.dirty = false
	}
}

// Flush forces an immediate persist, bypassing the debounce timer. Used
// on graceful shutdown.
func (m *Map) Flush() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	m.flush()
}
