package ytsearch

import (
	"context"
	"time"

	"github.com/ejv2/ytsearch/internal/aliasmap"
	"github.com/ejv2/ytsearch/internal/captiontext"
	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/faillog"
	"github.com/ejv2/ytsearch/internal/indexstore"
	"github.com/ejv2/ytsearch/internal/keywordlist"
	"github.com/ejv2/ytsearch/internal/kvstore"
	"github.com/ejv2/ytsearch/internal/playlist"
	"github.com/ejv2/ytsearch/internal/resource"
	"github.com/ejv2/ytsearch/internal/scheduler"
	"github.com/ejv2/ytsearch/internal/search"
	"github.com/ejv2/ytsearch/internal/textindex"
	"github.com/ejv2/ytsearch/internal/videocache"
)

// Services replaces the ambient "current task scheduler" and static
// service locators the original relied on with one explicit bag of
// collaborators, passed to every executor (§9 design note).
type Services struct {
	Remote     domain.Remote
	KVStore    *kvstore.Store
	IndexStore *indexstore.Store
	Scheduler  *scheduler.Scheduler
	Monitor    *resource.Monitor

	Playlists *playlist.Cache
	Videos    *videocache.Cache
	Captions  *captiontext.Cache
	Indexes   *textindex.Manager
	Aliases   *aliasmap.Map
	Failures  *faillog.Writer

	Config Config
}

// playlistBackfiller adapts a playlist.Cache + scope key into the
// search.Backfiller the Search Executor uses to write back upload
// dates discovered mid-search (§4.J step 5), without the search
// package needing to import playlist directly.
type playlistBackfiller struct {
	cache    *playlist.Cache
	scopeKey string
}

func (b playlistBackfiller) SetUploadedAt(id domain.VideoId, at time.Time) {
	_ = b.cache.SetUploadedAt(b.scopeKey, id, at)
}

// NewServices wires every component package into one Services bag,
// rooted at cfg.CacheRoot / cfg.ErrorLogRoot.
func NewServices(ctx context.Context, cfg Config, remote domain.Remote) (*Services, error) {
	kv, err := kvstore.Open(cfg.CacheRoot)
	if err != nil {
		return nil, err
	}
	idxStore, err := indexstore.Open(cfg.CacheRoot)
	if err != nil {
		return nil, err
	}
	registryKV, err := kvstore.Open(cfg.CacheRoot + "/shard-registry")
	if err != nil {
		return nil, err
	}
	aliases, err := aliasmap.New(kv, cfg.AliasMapDebounce)
	if err != nil {
		return nil, err
	}
	failures, err := faillog.Open(cfg.ErrorLogRoot)
	if err != nil {
		return nil, err
	}

	mon := resource.New(cfg.HighLoadMemoryPercent)
	sched := scheduler.New(mon, cfg.DelayBetweenHeatUps)

	return &Services{
		Remote:     remote,
		KVStore:    kv,
		IndexStore: idxStore,
		Scheduler:  sched,
		Monitor:    mon,
		Playlists:  playlist.New(kv, remote, cfg.ShardSize),
		Videos:     videocache.New(kv, remote),
		Captions:   captiontext.New(cfg.CaptionCacheIdle),
		Indexes:    textindex.NewManager(idxStore, registryKV),
		Aliases:    aliases,
		Failures:   failures,
		Config:     cfg,
	}, nil
}

// Executor builds a search.Executor scoped to scopeKey, backfilling
// uploaded dates through the playlist cache.
func (s *Services) Executor(scopeKey string) *search.Executor {
	bf := playlistBackfiller{cache: s.Playlists, scopeKey: scopeKey}
	return search.New(s.Scheduler, s.Indexes, s.Videos, s.Captions, bf, scopeKey)
}

// ListKeywords aggregates keyword->videos for a fully-resolved set of
// videos (§4.L). Keyword mode bypasses the text index entirely.
func (s *Services) ListKeywords(videos []domain.Video) []keywordlist.Entry {
	return keywordlist.Build(videos)
}

// PurgeVideo removes a cached video by id, the supporting path behind
// the user-initiated "purge by key" command (§4.A, Non-goals).
func (s *Services) PurgeVideo(id domain.VideoId) error {
	return s.Videos.Purge(id)
}

// PurgeOlderThan deletes KV and index-store entries not accessed within
// age, the user-initiated eviction-by-age path (§1 Non-goals carve-out).
// For KV keys age is rounded down to whole days, so an age under 24h
// selects every KV key.
func (s *Services) PurgeOlderThan(age time.Duration) (int, error) {
	days := int(age / (24 * time.Hour))
	removed, err := s.KVStore.Delete(kvstore.DeleteOptions{NotAccessedDays: &days})
	if err != nil {
		return 0, err
	}
	shards, err := s.IndexStore.Delete(indexstore.DeleteOptions{Age: &age})
	if err != nil {
		return len(removed), err
	}
	return len(removed) + len(shards), nil
}

// Close flushes debounced state on graceful shutdown.
func (s *Services) Close() {
	s.Aliases.Flush()
}
