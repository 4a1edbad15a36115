// Package playlist implements the Playlist Cache & Refresh (design
// §4.F): cached, ordered video-id membership per scope, refreshed from
// the Remote with an early-return policy so callers don't have to wait
// for a full re-enumeration before searching.
package playlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

// unchangedLookback is how many trailing insertions must all be "no
// change" before the early-return rule fires, per §4.F step 3.
const unchangedLookback = 10

// Entry is one playlist member: its video id and, once known, its
// upload date.
type Entry struct {
	ID         domain.VideoId
	UploadedAt *time.Time
}

// Playlist is the cached membership and metadata of a scope's backing
// YouTube playlist (explicit or a channel's implicit uploads playlist).
type Playlist struct {
	Title        string
	ThumbnailURL string
	Channel      string
	LoadedUTC    time.Time
	Videos       []Entry
	ShardNumbers map[domain.VideoId]int
}

// indexOf returns the position of id in Videos, or -1.
func (p *Playlist) indexOf(id domain.VideoId) int {
	for i, e := range p.Videos {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Page returns videos[skip:skip+take], clamped to the slice bounds.
func (p *Playlist) Page(skip, take int) []Entry {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(p.Videos) {
		return nil
	}
	end := skip + take
	if take <= 0 || end > len(p.Videos) {
		end = len(p.Videos)
	}
	return p.Videos[skip:end]
}

// assignShardNumbers buckets videos into contiguous windows of shardSize
// by their position in insertion order (§3 "contiguous 50-video windows
// from insertion order").
func (p *Playlist) assignShardNumbers(shardSize int) {
	if shardSize <= 0 {
		shardSize = 50
	}
	if p.ShardNumbers == nil {
		p.ShardNumbers = make(map[domain.VideoId]int)
	}
	for i, e := range p.Videos {
		p.ShardNumbers[e.ID] = i / shardSize
	}
}

// RefreshTask represents an in-flight background refresh. Stale
// delivers a single "results may be stale" signal if the playlist
// changed further after the caller's early return.
type RefreshTask struct {
	stale chan struct{}
	done  chan struct{}
}

// Stale reports whether the background pager found further changes
// after the caller's early return, without blocking.
func (t *RefreshTask) Stale() <-chan struct{} { return t.stale }

// Done closes once the background pager has fully run to completion.
func (t *RefreshTask) Done() <-chan struct{} { return t.done }

// Cache persists playlists via the KV store and drives refreshes
// against a Remote.
type Cache struct {
	kv        *kvstore.Store
	remote    domain.Remote
	shardSize int
}

func New(kv *kvstore.Store, remote domain.Remote, shardSize int) *Cache {
	return &Cache{kv: kv, remote: remote, shardSize: shardSize}
}

func storeKey(scopeKey string) string { return "playlist." + scopeKey }

// Get returns the cached playlist for a scope, or (Playlist{}, false)
// on a cache miss.
func (c *Cache) Get(scopeKey string) (Playlist, bool, error) {
	var p Playlist
	ok, err := c.kv.Get(storeKey(scopeKey), &p)
	if err != nil {
		return Playlist{}, false, err
	}
	return p, ok, nil
}

func (c *Cache) save(scopeKey string, p Playlist) error {
	return c.kv.Set(storeKey(scopeKey), p)
}

// SetUploadedAt backfills a single video's upload date in the cached
// playlist, per §4.J step 5 "the playlist's videos map updated". A
// missing cached playlist or video is a silent no-op: backfill is best
// effort and the next refresh will re-derive it anyway.
func (c *Cache) SetUploadedAt(scopeKey string, id domain.VideoId, at time.Time) error {
	p, ok, err := c.Get(scopeKey)
	if err != nil || !ok {
		return err
	}

	for i := range p.Videos {
		if p.Videos[i].ID != id {
			continue
		}
		t := at
		p.Videos[i].UploadedAt = &t
		return c.save(scopeKey, p)
	}

	return nil
}

// source identifies what backs a scope's playlist: either an explicit
// playlist id or a channel's implicit uploads playlist.
type Source struct {
	PlaylistID string
	ChannelID  string
	Implicit   bool
}

func (c *Cache) enumerate(ctx context.Context, src Source, cb func(domain.RemotePlaylistItem) error) error {
	if src.Implicit {
		return c.remote.GetChannelUploads(ctx, src.ChannelID, cb)
	}
	return c.remote.GetPlaylistItems(ctx, src.PlaylistID, cb)
}

// GetOrFetch returns the cached playlist, fetching its metadata (but
// not its membership) from the Remote on a miss.
func (c *Cache) GetOrFetch(ctx context.Context, scopeKey string, src Source) (Playlist, error) {
	if p, ok, err := c.Get(scopeKey); err != nil {
		return Playlist{}, err
	} else if ok {
		return p, nil
	}

	var meta domain.RemotePlaylistMeta
	var err error
	if src.Implicit {
		ch, cerr := c.remote.GetChannelByID(ctx, src.ChannelID)
		if cerr != nil {
			return Playlist{}, cerr
		}
		meta = domain.RemotePlaylistMeta{ID: ch.UploadsID, Title: ch.Name + " - Uploads", ChannelID: ch.ID}
		src.PlaylistID = ch.UploadsID
	} else {
		meta, err = c.remote.GetPlaylist(ctx, src.PlaylistID)
		if err != nil {
			if src.Implicit {
				err = domain.NewTransportError("get implicit uploads playlist", err)
			}
			return Playlist{}, err
		}
	}

	p := Playlist{
		Title:        meta.Title,
		ThumbnailURL: meta.ThumbnailURL,
		Channel:      meta.ChannelID,
		ShardNumbers: make(map[domain.VideoId]int),
	}
	if err := c.save(scopeKey, p); err != nil {
		return Playlist{}, err
	}
	return p, nil
}

// Refresh applies the §4.F refresh policy: it returns immediately with
// a nil RefreshTask if the cache is fresh enough and already holds
// `required` entries; otherwise it starts a background pager and
// returns once either the early-return condition is met or the pager
// finishes (for small playlists that never trigger early return).
func (c *Cache) Refresh(ctx context.Context, scopeKey string, src Source, required int, cacheAge time.Duration) (Playlist, *RefreshTask, error) {
	cached, _, err := c.Get(scopeKey)
	if err != nil {
		return Playlist{}, nil, err
	}

	if !cached.LoadedUTC.IsZero() && time.Since(cached.LoadedUTC) < cacheAge && required <= len(cached.Videos) {
		return cached, nil, nil
	}

	var mu sync.Mutex
	working := cached
	ready := make(chan struct{})
	task := &RefreshTask{stale: make(chan struct{}, 1), done: make(chan struct{})}

	readyClosed := false
	closeReady := func() {
		if !readyClosed {
			readyClosed = true
			close(ready)
		}
	}

	anyInserted := false
	go func() {
		defer close(task.done)

		bg := context.Background()
		unchangedStreak := 0
		insertedAfterReady := false

		seen := make(map[domain.VideoId]bool, len(working.Videos))
		var newOrder []Entry

		cbErr := c.enumerate(bg, src, func(item domain.RemotePlaylistItem) error {
			mu.Lock()
			defer mu.Unlock()

			idx := working.indexOf(item.VideoID)
			changed := idx < 0
			if changed {
				newOrder = append(newOrder, Entry{ID: item.VideoID, UploadedAt: item.UploadedAt})
				anyInserted = true
			} else {
				e := working.Videos[idx]
				if item.UploadedAt != nil {
					e.UploadedAt = item.UploadedAt
				}
				newOrder = append(newOrder, e)
			}
			seen[item.VideoID] = true

			if changed {
				unchangedStreak = 0
			} else {
				unchangedStreak++
			}

			if readyClosed {
				if changed {
					insertedAfterReady = true
				}
				return nil
			}

			if required <= len(newOrder) && unchangedStreak >= unchangedLookback {
				working.Videos = append([]Entry(nil), newOrder...)
				working.assignShardNumbers(c.shardSize)
				closeReady()
			}

			select {
			case <-ctx.Done():
				if !anyInserted {
					return ctx.Err()
				}
			default:
			}
			return nil
		})

		mu.Lock()
		for _, e := range working.Videos {
			if !seen[e.ID] {
				newOrder = append(newOrder, e)
			}
		}
		working.Videos = newOrder
		working.assignShardNumbers(c.shardSize)
		working.LoadedUTC = time.Now()
		closeReady()

		if insertedAfterReady {
			select {
			case task.stale <- struct{}{}:
			default:
			}
		}

		if cbErr == nil {
			_ = c.save(scopeKey, working)
		}
		mu.Unlock()
	}()

	select {
	case <-ready:
	case <-ctx.Done():
	}

	mu.Lock()
	snapshot := working
	snapshot.Videos = append([]Entry(nil), working.Videos...)
	mu.Unlock()

	return snapshot, task, nil
}

// SortEntries is exposed for tests that want a deterministic entry ordering.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
