// Package search implements the Search Executor (design §4.J): it
// orchestrates indexed and un-indexed search across shards, re-scores
// across shards, orders results, and renders padded matches.
package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ejv2/ytsearch/internal/captiontext"
	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/match"
	"github.com/ejv2/ytsearch/internal/scheduler"
	"github.com/ejv2/ytsearch/internal/textindex"
	"github.com/ejv2/ytsearch/internal/videocache"
)

// unindexedBatchSize is the un-indexed branch's producer-consumer
// capacity and commit threshold, per §4.J step 3(b).
const unindexedBatchSize = 10

// Command is a search request against a resolved set of candidate
// videos (§4.J).
type Command struct {
	Query   string
	Padding int
	// OrderBy is a subset of "score", "uploaded", "asc". "uploaded" and
	// "score" are mutually exclusive; that is an input error caught at
	// pre-validation, not here.
	OrderBy []string
}

func (c Command) has(key string) bool {
	for _, o := range c.OrderBy {
		if o == key {
			return true
		}
	}
	return false
}

// Result is one matched video, with its renderable match windows.
type Result struct {
	VideoID            domain.VideoId
	Video              domain.Video
	Score              float64
	TitleMatches       []match.MatchedText
	DescriptionMatches []match.MatchedText
	KeywordMatches     []match.MatchedText
	CaptionMatches     map[string][]match.TimedMatch
}

// Backfiller lets the executor record a video's discovered upload date
// back onto its owning playlist, per §4.J step 5. Implemented by the
// orchestration layer to avoid a direct dependency on internal/playlist.
type Backfiller interface {
	SetUploadedAt(id domain.VideoId, at time.Time)
}

// Executor runs SearchCommands against a resolved candidate set.
type Executor struct {
	scheduler  *scheduler.Scheduler
	indexes    *textindex.Manager
	videos     *videocache.Cache
	captions   *captiontext.Cache
	backfiller Backfiller
	scopeKey   string
}

func New(sched *scheduler.Scheduler, indexes *textindex.Manager, videos *videocache.Cache, captions *captiontext.Cache, backfiller Backfiller, scopeKey string) *Executor {
	return &Executor{
		scheduler:  sched,
		indexes:    indexes,
		videos:     videos,
		captions:   captions,
		backfiller: backfiller,
		scopeKey:   scopeKey,
	}
}

func shardKey(scopeKey string, shardNumber int) string {
	return scopeKey + "." + strconv.Itoa(shardNumber)
}

// Search resolves cmd against candidates, grouped into shards by
// shardOf, and returns results ordered per cmd.OrderBy.
func (e *Executor) Search(ctx context.Context, candidates []domain.VideoId, shardOf func(domain.VideoId) int, cmd Command) ([]Result, error) {
	byShard := make(map[int][]domain.VideoId)
	for _, id := range candidates {
		n := shardOf(id)
		byShard[n] = append(byShard[n], id)
	}

	var mu sync.Mutex
	var results []Result
	multiShard := len(byShard) > 1

	tasks := make([]scheduler.Task, 0, len(byShard))
	for shardNum, ids := range byShard {
		shardNum, ids := shardNum, ids
		tasks = append(tasks, scheduler.Task{
			Name: shardKey(e.scopeKey, shardNum),
			Launcher: func(ctx context.Context) (any, error) {
				shardResults, err := e.searchShard(ctx, shardNum, ids, cmd)
				mu.Lock()
				results = append(results, shardResults...)
				mu.Unlock()
				return nil, err
			},
		})
	}

	if err := e.scheduler.Run(ctx, tasks, discardResults()); err != nil {
		return nil, err
	}

	if multiShard {
		for i := range results {
			results[i].Score = countBasedScore(results[i])
		}
	}

	e.order(ctx, results, cmd)

	return results, nil
}

// discardResults gives Run somewhere to stream per-task outcomes when
// the caller only cares about the side effects each task already
// recorded under its own lock.
func discardResults() chan scheduler.Result {
	ch := make(chan scheduler.Result, 64)
	go func() {
		for range ch {
		}
	}()
	return ch
}

// countBasedScore implements §4.J step 4's cross-shard proxy score.
func countBasedScore(r Result) float64 {
	count := len(r.TitleMatches) + len(r.DescriptionMatches) + len(r.KeywordMatches)
	for _, windows := range r.CaptionMatches {
		count += len(windows)
	}
	return float64(count)
}

func (e *Executor) searchShard(ctx context.Context, shardNum int, candidates []domain.VideoId, cmd Command) ([]Result, error) {
	key := shardKey(e.scopeKey, shardNum)
	shard, err := e.indexes.Obtain(key)
	if err != nil {
		return nil, err
	}
	defer e.indexes.Release(key)

	var indexed, unindexed []domain.VideoId
	videoByID := make(map[domain.VideoId]domain.Video, len(candidates))
	for _, id := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v, ok, err := e.videos.Peek(id)
		if err != nil {
			return nil, err
		}
		videoByID[id] = v
		if ok && !v.Unindexed && v.CaptionsComplete() {
			indexed = append(indexed, id)
		} else {
			unindexed = append(unindexed, id)
		}
	}

	var results []Result

	if len(indexed) > 0 {
		hits, err := shard.Search(cmd.Query, indexed)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			v, ok, err := e.videos.Peek(h.VideoID)
			if err != nil {
				return nil, err
			}
			if !ok || !v.Unindexed {
				results = append(results, e.renderResult(h, videoByID[h.VideoID], cmd.Padding))
				continue
			}

			// Re-fetched and marked unindexed by someone else since
			// this shard's search() saw it: suppress the stale hit,
			// re-index and re-search just this id (§4.J step 6).
			reresult, err := e.reindexAndSearch(ctx, shard, h.VideoID, cmd)
			if err != nil {
				return nil, err
			}
			if reresult != nil {
				results = append(results, *reresult)
			}
		}
	}

	if len(unindexed) > 0 {
		batchResults, err := e.processUnindexed(ctx, shard, unindexed, cmd)
		if err != nil {
			return results, err
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

// reindexAndSearch re-adds a single video to shard and re-runs the
// query restricted to just that id, the one-id follow-up pass required
// by §4.J step 6. It returns (nil, nil) if the re-indexed video no
// longer matches.
func (e *Executor) reindexAndSearch(ctx context.Context, shard *textindex.Shard, id domain.VideoId, cmd Command) (*Result, error) {
	v, _, err := e.videos.GetVideo(ctx, id, true)
	if err != nil {
		return nil, err
	}

	fullText := make(map[string]string, len(v.CaptionTracks))
	for _, t := range v.CaptionTracks {
		if !t.Downloaded() {
			continue
		}
		flat := e.captions.Get(captiontext.Key{VideoID: id, Language: t.LanguageName}, t)
		fullText[t.LanguageName] = flat.FullText
	}

	if err := shard.Add(textindex.Document{Video: v, FullText: fullText}); err != nil {
		return nil, err
	}

	v.Unindexed = false
	if err := e.videos.MarkIndexed(v); err != nil {
		return nil, err
	}

	hits, err := shard.Search(cmd.Query, []domain.VideoId{id})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	res := e.renderResult(hits[0], v, cmd.Padding)
	return &res, nil
}

// processUnindexed runs §4.J step 3(b): a bounded producer-consumer
// that fetches and indexes videos, committing in batches of up to
// unindexedBatchSize and emitting results per committed batch.
func (e *Executor) processUnindexed(ctx context.Context, shard *textindex.Shard, ids []domain.VideoId, cmd Command) ([]Result, error) {
	type fetched struct {
		video    domain.Video
		fullText map[string]string
	}

	fetchedCh := make(chan fetched, unindexedBatchSize)
	sem := semaphore.NewWeighted(unindexedBatchSize)
	var wg sync.WaitGroup
	var fetchErr error
	var fetchErrMu sync.Mutex

	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			v, _, err := e.videos.GetVideo(ctx, id, true)
			if err != nil {
				fetchErrMu.Lock()
				fetchErr = err
				fetchErrMu.Unlock()
				return
			}

			fullText := make(map[string]string, len(v.CaptionTracks))
			for _, t := range v.CaptionTracks {
				if !t.Downloaded() {
					continue
				}
				flat := e.captions.Get(captiontext.Key{VideoID: id, Language: t.LanguageName}, t)
				fullText[t.LanguageName] = flat.FullText
			}

			select {
			case fetchedCh <- fetched{video: v, fullText: fullText}:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(fetchedCh)
	}()

	var results []Result
	shard.BeginBatch()
	var pendingIDs []domain.VideoId
	pendingVideos := make(map[domain.VideoId]domain.Video)

	commit := func() error {
		if len(pendingIDs) == 0 {
			return nil
		}
		if err := shard.CommitBatch(); err != nil {
			return err
		}
		for _, id := range pendingIDs {
			v := pendingVideos[id]
			v.Unindexed = false
			if err := e.videos.MarkIndexed(v); err != nil {
				return err
			}
			pendingVideos[id] = v
		}

		hits, err := shard.Search(cmd.Query, pendingIDs)
		if err != nil {
			return err
		}
		for _, h := range hits {
			results = append(results, e.renderResult(h, pendingVideos[h.VideoID], cmd.Padding))
		}

		pendingIDs = pendingIDs[:0]
		pendingVideos = make(map[domain.VideoId]domain.Video)
		shard.BeginBatch()
		return nil
	}

	for f := range fetchedCh {
		if err := shard.Add(textindex.Document{Video: f.video, FullText: f.fullText}); err != nil {
			return results, err
		}
		pendingIDs = append(pendingIDs, f.video.ID)
		pendingVideos[f.video.ID] = f.video

		if len(pendingIDs) >= unindexedBatchSize {
			if err := commit(); err != nil {
				return results, err
			}
		}
	}

	if err := commit(); err != nil {
		return results, err
	}

	return results, fetchErr
}

func (e *Executor) renderResult(h textindex.Hit, v domain.Video, padding int) Result {
	r := Result{VideoID: h.VideoID, Video: v, Score: h.Score, CaptionMatches: make(map[string][]match.TimedMatch)}

	if locs, ok := h.FieldLocations["title"]; ok {
		r.TitleMatches = []match.MatchedText{match.NewMatchedText(v.Title, toIncluded(locs))}
	}
	if locs, ok := h.FieldLocations["description"]; ok {
		r.DescriptionMatches = windowsFor(v.Description, locs, padding)
	}
	if locs, ok := h.FieldLocations["keywords"]; ok {
		r.KeywordMatches = keywordMatchesFor(v.Keywords, locs)
	}
	for field, locs := range h.FieldLocations {
		lang, ok := strings.CutPrefix(field, "caption.")
		if !ok {
			continue
		}
		track, ok := v.Track(lang)
		if !ok {
			continue
		}
		flat := e.captions.Get(captiontext.Key{VideoID: v.ID, Language: lang}, track)
		r.CaptionMatches[lang] = captionWindowsFor(flat, locs, padding)
	}

	return r
}

func toIncluded(locs []textindex.Location) []match.Included {
	included := make([]match.Included, len(locs))
	for i, l := range locs {
		included[i] = match.Included{Start: l.Start, Length: l.End - l.Start}
	}
	return included
}

// keywordMatchesFor maps "keywords" field hit locations - offsets into
// the textindex.JoinKeywords concatenation - back to the keyword that
// produced each one, emitting one MatchedText per matched keyword with
// its Matches re-rooted to that keyword's own text (§4.J step 3).
func keywordMatchesFor(keywords []string, locs []textindex.Location) []match.MatchedText {
	if len(keywords) == 0 || len(locs) == 0 {
		return nil
	}

	type span struct{ start, end int }
	spans := make([]span, len(keywords))
	pos := 0
	for i, kw := range keywords {
		spans[i] = span{start: pos, end: pos + len(kw)}
		pos += len(kw) + len(textindex.KeywordSeparator)
	}

	byKeyword := make(map[int][]match.Included)
	for _, l := range locs {
		for i, sp := range spans {
			if l.Start >= sp.start && l.Start < sp.end {
				byKeyword[i] = append(byKeyword[i], match.Included{Start: l.Start - sp.start, Length: l.End - l.Start})
				break
			}
		}
	}

	idxs := make([]int, 0, len(byKeyword))
	for i := range byKeyword {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := make([]match.MatchedText, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, match.NewMatchedText(keywords[i], byKeyword[i]))
	}
	return out
}

// captionWindowsFor implements §4.J step 3's caption-specific match
// algorithm: pad and merge the raw hit locations as usual, but then
// for each merged interval locate the run of captions spanning it via
// Flattened.Span, render the match over that run's full (unclipped)
// text, and attach the first covering caption's start time as the
// playback offset. Windows are returned ordered by offset.
func captionWindowsFor(flat captiontext.Flattened, locs []textindex.Location, padding int) []match.TimedMatch {
	mt := match.NewMatchedText(flat.FullText, toIncluded(locs))
	groups := match.GroupSplit(mt, padding)

	var windows []match.TimedMatch
	for _, g := range groups {
		padded := make([]match.Padded, len(g.Matches))
		for i, m := range g.Matches {
			padded[i] = match.Pad(m, padding, len(flat.FullText))
		}
		merged := match.Merge(padded)
		for _, p := range merged {
			text, spanStart, at, ok := flat.Span(p.Start, p.End)
			if !ok {
				continue
			}

			rerooted := make([]match.Included, len(p.Matches))
			for i, m := range p.Matches {
				rerooted[i] = match.Included{Start: m.Start + p.Start - spanStart, Length: m.Length}
			}

			windows = append(windows, match.TimedMatch{
				MatchedText: match.NewMatchedText(text, rerooted),
				At:          at,
			})
		}
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].At < windows[j].At })
	return windows
}

func windowsFor(text string, locs []textindex.Location, padding int) []match.MatchedText {
	mt := match.NewMatchedText(text, toIncluded(locs))
	groups := match.GroupSplit(mt, padding)

	var windows []match.MatchedText
	for _, g := range groups {
		padded := make([]match.Padded, len(g.Matches))
		for i, m := range g.Matches {
			padded[i] = match.Pad(m, padding, len(text))
		}
		merged := match.Merge(padded)
		for _, p := range merged {
			windows = append(windows, p.ToMatchedText(text))
		}
	}

	return windows
}

// order implements §4.J step 5: buffering and sorting by uploaded or
// score when requested, backfilling missing upload dates.
func (e *Executor) order(ctx context.Context, results []Result, cmd Command) {
	switch {
	case cmd.has("uploaded"):
		for i := range results {
			if results[i].Video.UploadedUTC == nil {
				if v, ok, err := e.videos.Peek(results[i].VideoID); err == nil && ok && v.UploadedUTC != nil {
					results[i].Video.UploadedUTC = v.UploadedUTC
				}
				if results[i].Video.UploadedUTC != nil && e.backfiller != nil {
					e.backfiller.SetUploadedAt(results[i].VideoID, *results[i].Video.UploadedUTC)
				}
			}
		}
		asc := cmd.has("asc")
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].Video.UploadedUTC, results[j].Video.UploadedUTC
			if a == nil || b == nil {
				return false
			}
			if asc {
				return a.Before(*b)
			}
			return a.After(*b)
		})
	case cmd.has("score"):
		asc := cmd.has("asc")
		sort.SliceStable(results, func(i, j int) bool {
			if asc {
				return results[i].Score < results[j].Score
			}
			return results[i].Score > results[j].Score
		})
	}
}
