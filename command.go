package ytsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/keywordlist"
	"github.com/ejv2/ytsearch/internal/playlist"
	"github.com/ejv2/ytsearch/internal/search"
)

// OutputShow is the external-writer hint carried by both commands
// (§6); the core never interprets it, it is only threaded through to
// whichever CLI/GUI writer consumes the result.
type OutputShow int

const (
	ShowNone OutputShow = iota
	ShowFile
	ShowFolder
)

// SearchCommand is the external command surface's search request
// (§6). SaveAsRecent, OutputWidth, OutputPathHint and Show are carried
// verbatim for the surrounding CLI/GUI (recent-command persistence and
// output rendering are Non-goals, §1) and are otherwise unused by the
// core.
type SearchCommand struct {
	Scopes  []Scope
	Query   string
	Padding int
	OrderBy []string

	SaveAsRecent   bool
	OutputWidth    int
	OutputPathHint string
	Show           OutputShow
}

// ListKeywordsCommand is the external command surface's keyword
// aggregation request (§6).
type ListKeywordsCommand struct {
	Scopes []Scope

	SaveAsRecent   bool
	OutputWidth    int
	OutputPathHint string
	Show           OutputShow
}

// ScopeResult pairs one scope of a (possibly multi-scope) command with
// its outcome, so a caller can tell which scope a result or error came
// from.
type ScopeResult struct {
	Scope   Scope
	Results []search.Result
	Err     error
}

// KeywordScopeResult is ScopeResult's ListKeywords analogue.
type KeywordScopeResult struct {
	Scope   Scope
	Entries []keywordlist.Entry
	Err     error
}

// Engine is the public entry point tying scope resolution, playlist
// refresh and the search executor together (§6's two commands).
type Engine struct {
	services *Services

	// Progress and Notifications are the §4.E observer channels. Both
	// are optional: a nil sink simply drops the events, so embedders
	// that don't care about live progress don't have to drain anything.
	Progress      *Throttle
	Notifications *NotificationSink
}

// NewEngine builds an Engine over services. Call WithObservers to
// attach progress/notification sinks; without them, events are dropped.
func NewEngine(services *Services) *Engine {
	return &Engine{services: services}
}

// WithObservers attaches the §4.E progress/notification sinks and
// returns the Engine for chaining.
func (e *Engine) WithObservers(progress *Throttle, notifications *NotificationSink) *Engine {
	e.Progress = progress
	e.Notifications = notifications
	return e
}

func (e *Engine) emit(commandID string, scope Scope, state ProgressState) {
	if e.Progress == nil {
		return
	}
	e.Progress.Emit(ProgressEvent{CommandID: commandID, Scope: scope.Key, State: state})
}

// Search runs a SearchCommand to completion, one scope at a time. A
// single hierarchical cancel token (ctx) propagates into scope
// enumeration, playlist refresh, video fetch, index writes and search,
// per §5 "Cancellation". Every scope of one call shares a CommandID,
// correlating their progress events.
func (e *Engine) Search(ctx context.Context, cmd SearchCommand) ([]ScopeResult, error) {
	if err := ValidateQuery(cmd.Query); err != nil {
		return nil, err
	}
	if err := ValidateOrderBy(cmd.OrderBy); err != nil {
		return nil, err
	}

	commandID := uuid.NewString()

	out := make([]ScopeResult, 0, len(cmd.Scopes))
	for _, scope := range cmd.Scopes {
		e.emit(commandID, scope, Queued)
		results, err := e.searchScope(ctx, commandID, scope, cmd)

		switch {
		case ctx.Err() != nil:
			// §7 "Cancelled ... never surfaced as a failure, reported
			// as progress canceled."
			e.emit(commandID, scope, Canceled)
		case err != nil:
			e.services.Failures.Write(time.Now(), scope.Key, err)
			if e.Notifications != nil {
				e.Notifications.Emit(Notification{CommandID: commandID, Scope: scope.Key, Title: "Search failed", Message: err.Error(), Errors: []error{err}, Level: LevelError})
			}
		default:
			e.emit(commandID, scope, Searched)
		}

		out = append(out, ScopeResult{Scope: scope, Results: results, Err: err})
		if _, isInput := asInputError(err); isInput {
			// §7 "Input errors do stop sibling searches so the user
			// sees a single actionable message."
			break
		}
	}

	return out, nil
}

func asInputError(err error) (*domain.InputError, bool) {
	ie, ok := err.(*domain.InputError)
	return ie, ok
}

func (e *Engine) searchScope(ctx context.Context, commandID string, scope Scope, cmd SearchCommand) ([]search.Result, error) {
	scope, err := PreValidate(scope)
	if err != nil {
		return nil, err
	}
	e.emit(commandID, scope, PreValidated)

	scope, err = RemoteValidate(ctx, scope, e.services.Remote, e.services.Aliases, e.services.Playlists, e.services.Videos)
	if err != nil {
		return nil, err
	}
	e.emit(commandID, scope, Validated)

	if scope.Kind == KindPlaylist || scope.Kind == KindChannel {
		e.emit(commandID, scope, Refreshing)
	}
	candidates, shardOf, err := e.resolveCandidates(ctx, scope)
	if err != nil {
		return nil, err
	}

	executor := e.services.Executor(scope.Key)
	padding := cmd.Padding
	if padding == 0 {
		padding = e.services.Config.DefaultPadding
	}

	e.emit(commandID, scope, Searching)
	return executor.Search(ctx, candidates, shardOf, search.Command{
		Query:   cmd.Query,
		Padding: padding,
		OrderBy: cmd.OrderBy,
	})
}

// resolveCandidates implements §4.J step 1: explicit ids for
// VideosScope, or a refreshed page of the backing playlist for
// playlist-like scopes, plus the shard lookup derived from
// Playlist.ShardNumbers (§4.J step 2).
func (e *Engine) resolveCandidates(ctx context.Context, scope Scope) ([]domain.VideoId, func(domain.VideoId) int, error) {
	switch scope.Kind {
	case KindVideos:
		return scope.VideoIDs, func(domain.VideoId) int { return 0 }, nil

	case KindPlaylist, KindChannel:
		src := playlistSource(scope)
		required := scope.Skip + scope.Take
		cacheAge := time.Duration(scope.CacheHours) * time.Hour

		p, _, err := e.services.Playlists.Refresh(ctx, scope.Key, src, required, cacheAge)
		if err != nil {
			return nil, nil, err
		}

		entries := p.Page(scope.Skip, scope.Take)
		ids := make([]domain.VideoId, len(entries))
		for i, en := range entries {
			ids[i] = en.ID
		}

		shardOf := func(id domain.VideoId) int {
			if n, ok := p.ShardNumbers[id]; ok {
				return n
			}
			return 0
		}
		return ids, shardOf, nil

	default:
		return nil, nil, fmt.Errorf("unknown scope kind %v", scope.Kind)
	}
}

func playlistSource(scope Scope) playlist.Source {
	if scope.Kind == KindChannel {
		return playlist.Source{ChannelID: scope.Validated.ID, Implicit: true}
	}
	id, _ := extractPlaylistID(scope.Alias)
	return playlist.Source{PlaylistID: id}
}

// ListKeywords runs a ListKeywordsCommand, bypassing the text index
// entirely per §2's flow note ("Keyword mode bypasses I and goes
// straight from F/G to L").
func (e *Engine) ListKeywords(ctx context.Context, cmd ListKeywordsCommand) ([]KeywordScopeResult, error) {
	commandID := uuid.NewString()

	out := make([]KeywordScopeResult, 0, len(cmd.Scopes))
	for _, scope := range cmd.Scopes {
		e.emit(commandID, scope, Queued)
		entries, err := e.listKeywordsScope(ctx, scope)

		switch {
		case ctx.Err() != nil:
			e.emit(commandID, scope, Canceled)
		case err != nil:
			e.services.Failures.Write(time.Now(), scope.Key, err)
			if e.Notifications != nil {
				e.Notifications.Emit(Notification{CommandID: commandID, Scope: scope.Key, Title: "Keyword listing failed", Message: err.Error(), Errors: []error{err}, Level: LevelError})
			}
		default:
			e.emit(commandID, scope, Searched)
		}

		out = append(out, KeywordScopeResult{Scope: scope, Entries: entries, Err: err})
		if _, isInput := asInputError(err); isInput {
			break
		}
	}
	return out, nil
}

func (e *Engine) listKeywordsScope(ctx context.Context, scope Scope) ([]keywordlist.Entry, error) {
	scope, err := PreValidate(scope)
	if err != nil {
		return nil, err
	}
	scope, err = RemoteValidate(ctx, scope, e.services.Remote, e.services.Aliases, e.services.Playlists, e.services.Videos)
	if err != nil {
		return nil, err
	}

	ids, _, err := e.resolveCandidates(ctx, scope)
	if err != nil {
		return nil, err
	}

	videos := make([]domain.Video, 0, len(ids))
	for _, id := range ids {
		v, _, err := e.services.Videos.GetVideo(ctx, id, false)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		videos = append(videos, v)
	}

	return e.services.ListKeywords(videos), nil
}
