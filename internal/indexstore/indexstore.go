// Package indexstore manages the on-disk lifetime of text-index shards
// (design §4.B): opening, building, version-tagging and deleting the
// bleve indices that back internal/textindex, while enforcing that at
// most one handle to a given shard is live at a time.
package indexstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/ejv2/ytsearch/internal/domain"
)

// formatVersion is bumped whenever the on-disk shard layout changes in
// a way existing shards can't be read back from. A stored shard whose
// meta file reports a different version is treated as absent and
// deleted outright, per §4.B.
const formatVersion = 1

type shardMeta struct {
	Version      int
	LastModified time.Time
}

// Handle is a live reference to one shard's index. Callers must call
// Close when done so the shard can be reopened (or reused) later.
type Handle struct {
	bleve.Index

	store    *Store
	shardKey string
}

// MarkDirty schedules an asynchronous metadata save recording that the
// shard was just modified. This is the "write-back callback" of §4.B:
// the caller doesn't block on it, and it never reports an error back up.
func (h *Handle) MarkDirty() {
	go h.store.saveMeta(h.shardKey)
}

// Close releases the handle, allowing the shard to be obtained again.
func (h *Handle) Close() error {
	err := h.Index.Close()
	h.store.release(h.shardKey)
	return err
}

// Store opens, builds and deletes shard indices under a root directory.
type Store struct {
	dir string

	mu   sync.Mutex
	live map[string]struct{}
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewStorageError("open index store", err)
	}
	return &Store{dir: dir, live: make(map[string]struct{})}, nil
}

func (s *Store) indexPath(shardKey string) string {
	return filepath.Join(s.dir, safeShardKey(shardKey)+".bleve")
}

func (s *Store) metaPath(shardKey string) string {
	return filepath.Join(s.dir, safeShardKey(shardKey)+".meta")
}

func safeShardKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func (s *Store) acquire(shardKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[shardKey]; ok {
		return fmt.Errorf("indexstore: shard %s already has a live handle", shardKey)
	}
	s.live[shardKey] = struct{}{}
	return nil
}

func (s *Store) release(shardKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, shardKey)
}

func (s *Store) readMeta(shardKey string) (shardMeta, bool) {
	data, err := os.ReadFile(s.metaPath(shardKey))
	if err != nil {
		return shardMeta{}, false
	}
	var m shardMeta
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return shardMeta{}, false
	}
	return m, true
}

func (s *Store) saveMeta(shardKey string) {
	var buf bytes.Buffer
	m := shardMeta{Version: formatVersion, LastModified: time.Now()}
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return
	}
	_ = os.WriteFile(s.metaPath(shardKey), buf.Bytes(), 0o644)
}

func (s *Store) removeShardFiles(shardKey string) error {
	if err := os.RemoveAll(s.indexPath(shardKey)); err != nil {
		return err
	}
	return os.Remove(s.metaPath(shardKey))
}

// Get opens an existing shard, returning (handle, true, nil) on a hit
// and (nil, false, nil) on a miss, a version mismatch or an index that
// fails to open (in the last two cases the shard is deleted). The only
// error is a StorageError when the shard already has a live handle.
func (s *Store) Get(shardKey string) (*Handle, bool, error) {
	meta, ok := s.readMeta(shardKey)
	if !ok {
		return nil, false, nil
	}
	if meta.Version != formatVersion {
		_ = s.removeShardFiles(shardKey)
		return nil, false, nil
	}

	if _, err := os.Stat(s.indexPath(shardKey)); err != nil {
		return nil, false, nil
	}

	if err := s.acquire(shardKey); err != nil {
		return nil, false, domain.NewStorageError("get shard "+shardKey, err)
	}

	idx, err := bleve.Open(s.indexPath(shardKey))
	if err != nil {
		s.release(shardKey)
		_ = s.removeShardFiles(shardKey)
		return nil, false, nil
	}

	return &Handle{Index: idx, store: s, shardKey: shardKey}, true, nil
}

// Build creates a fresh shard index under the given mapping. It is an
// error to Build a shard that already has a live handle or an existing
// unreleased index on disk with the same key; callers should Get first.
func (s *Store) Build(shardKey string, mapping *bleve.IndexMapping) (*Handle, error) {
	if err := s.acquire(shardKey); err != nil {
		return nil, domain.NewStorageError("build shard "+shardKey, err)
	}

	idx, err := bleve.New(s.indexPath(shardKey), mapping)
	if err != nil {
		s.release(shardKey)
		return nil, domain.NewStorageError("build shard "+shardKey, err)
	}

	h := &Handle{Index: idx, store: s, shardKey: shardKey}
	s.saveMeta(shardKey)
	return h, nil
}

// DeleteOptions selects which shards Delete removes.
type DeleteOptions struct {
	Key    string
	Prefix string
	Age    *time.Duration
}

// Delete removes shard files matching the given selector, skipping any
// shard that currently has a live handle, and returns the shard keys it
// removed.
func (s *Store) Delete(opts DeleteOptions) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, domain.NewStorageError("list index store", err)
	}

	seen := make(map[string]os.FileInfo)
	for _, e := range entries {
		name := e.Name()
		var key string
		switch {
		case strings.HasSuffix(name, ".bleve"):
			key = strings.TrimSuffix(name, ".bleve")
		case strings.HasSuffix(name, ".meta"):
			key = strings.TrimSuffix(name, ".meta")
		default:
			continue
		}
		if info, err := e.Info(); err == nil {
			if existing, ok := seen[key]; !ok || info.ModTime().After(existing.ModTime()) {
				seen[key] = info
			}
		}
	}

	var removed []string
	for key, info := range seen {
		if opts.Key != "" && key != safeShardKey(opts.Key) {
			continue
		}
		if opts.Prefix != "" && !strings.HasPrefix(key, safeShardKey(opts.Prefix)) {
			continue
		}
		if opts.Age != nil && time.Since(info.ModTime()) < *opts.Age {
			continue
		}

		s.mu.Lock()
		_, live := s.live[key]
		s.mu.Unlock()
		if live {
			continue
		}

		if err := os.RemoveAll(filepath.Join(s.dir, key+".bleve")); err != nil {
			return removed, domain.NewStorageError("delete shard "+key, err)
		}
		_ = os.Remove(filepath.Join(s.dir, key+".meta"))
		removed = append(removed, key)
	}

	return removed, nil
}
