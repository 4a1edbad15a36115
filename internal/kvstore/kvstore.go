// Package kvstore implements the durable key→value mapping described in
// design §4.A: one file per key under a directory, atomic-ish writes,
// age-indexed enumeration, and self-healing on corruption.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// errCorrupt names the parse-failure case but is not returned: when a
// value file fails to parse, Get deletes the file and reports absence.
var errCorrupt = errors.New("kvstore: corrupt value")

// Store is a directory-backed key→value mapping. One file exists per
// key, named after a filesystem-safe encoding of the key. Store
// guarantees single-writer-per-key by serialising writers on a per-key
// mutex; readers tolerate a concurrent replacement by treating a
// corrupt read as absent, never as an error.
type Store struct {
	dir string

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// Open returns a Store rooted at dir, creating dir if necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", dir, err)
	}
	return &Store{dir: dir, keyLocks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()

	m, ok := s.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.keyLocks[key] = m
	}
	return m
}

// safeFileName keeps [A-Za-z0-9-.] as is, maps a space to '_' and
// percent-encodes every other byte (including '_') so arbitrary keys - including the
// space-separated "video <id>" style keys of §6 - become valid file
// names without risk of path traversal.
func safeFileName(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			sb.WriteByte(c)
		case c == ' ':
			sb.WriteByte('_')
		default:
			fmt.Fprintf(&sb, "%%%02x", c)
		}
	}
	return sb.String() + ".json"
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, safeFileName(key))
}

// Get deserialises the value stored under key into out. It reports
// (false, nil) both when the key is absent and when the stored value is
// corrupt - in the corrupt case the file is deleted first, so the next
// read (by anyone) also reports absence: corruption is self-healing,
// never surfaced as StorageError (§4.A, §7).
func (s *Store) Get(key string, out any) (bool, error) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		_ = os.Remove(s.path(key))
		return false, nil
	}

	return true, nil
}

// Set atomically replaces the value stored under key. Passing a nil
// value deletes the key, per §4.A ("delete on null").
func (s *Store) Set(key string, value any) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if value == nil {
		err := os.Remove(s.path(key))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("kvstore: delete %s: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: marshal %s: %w", key, err)
	}

	return s.writeAtomic(s.path(key), data)
}

// writeAtomic writes data to target via a temp file followed by a
// rename, the same write-then-rename pattern the corpus uses to avoid
// ever exposing a half-written value file to a concurrent reader.
func (s *Store) writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp.*")
	if err != nil {
		return fmt.Errorf("kvstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: rename: %w", err)
	}
	return nil
}

// LastModified returns the modification time of the given key's file.
func (s *Store) LastModified(key string) (time.Time, bool, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("kvstore: stat %s: %w", key, err)
	}
	return info.ModTime(), true, nil
}

// entry describes one on-disk key discovered by a directory walk.
type entry struct {
	key      string
	fileName string
	modTime  time.Time
}

// decodeFileName is the (lossy but sufficient) inverse of safeFileName,
// used only for prefix matching against keys supplied in their original
// (unescaped) form.
func decodeFileName(name string) string {
	name = strings.TrimSuffix(name, ".json")
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			var b int
			if _, err := fmt.Sscanf(name[i+1:i+3], "%02x", &b); err == nil {
				sb.WriteByte(byte(b))
				i += 2
				continue
			}
		}
		if name[i] == '_' {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}

func (s *Store) scan() ([]entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: scan: %w", err)
	}

	entries := make([]entry, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entry{
			key:      decodeFileName(f.Name()),
			fileName: f.Name(),
			modTime:  info.ModTime(),
		})
	}
	return entries, nil
}

// KeysWithPrefix returns every key whose decoded form starts with
// prefix. If notAccessedDays is non-nil, only keys whose file has not
// been modified in at least that many days are returned (§4.A
// "age-indexed enumeration").
func (s *Store) KeysWithPrefix(prefix string, notAccessedDays *int) ([]string, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if notAccessedDays != nil {
		cutoff = time.Now().Add(-time.Duration(*notAccessedDays) * 24 * time.Hour)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.key, prefix) {
			continue
		}
		if notAccessedDays != nil && e.modTime.After(cutoff) {
			continue
		}
		keys = append(keys, e.key)
	}

	sort.Strings(keys)
	return keys, nil
}

// DeleteOptions configures a bulk Delete call.
type DeleteOptions struct {
	// Key, if non-empty, deletes exactly one key.
	Key string
	// Prefix, if non-empty (and Key is empty), deletes every key
	// starting with Prefix.
	Prefix string
	// NotAccessedDays, if non-nil, further restricts deletion to keys
	// not modified in at least that many days.
	NotAccessedDays *int
	// Simulate, if true, computes and returns the keys that would be
	// deleted without touching the filesystem.
	Simulate bool
}

// Delete removes keys matching opts and returns the list of keys
// affected (or that would be affected, under Simulate).
func (s *Store) Delete(opts DeleteOptions) ([]string, error) {
	var candidates []string
	var err error

	switch {
	case opts.Key != "":
		candidates = []string{opts.Key}
	default:
		candidates, err = s.KeysWithPrefix(opts.Prefix, opts.NotAccessedDays)
		if err != nil {
			return nil, err
		}
	}

	if opts.Simulate {
		return candidates, nil
	}

	deleted := make([]string, 0, len(candidates))
	for _, k := range candidates {
		if err := s.Set(k, nil); err != nil {
			return deleted, err
		}
		deleted = append(deleted, k)
	}
	return deleted, nil
}

// Stats reports the number of keys and their total size on disk. No
// cmd/ytsearchd route exposes it.
type Stats struct {
	Keys      int
	TotalSize int64
}

func (s *Store) Stats() (Stats, error) {
	entries, err := s.scan()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Keys: len(entries)}
	for _, e := range entries {
		info, err := os.Stat(filepath.Join(s.dir, e.fileName))
		if err == nil {
			st.TotalSize += info.Size()
		}
	}
	return st, nil
}
