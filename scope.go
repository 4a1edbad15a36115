package ytsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ejv2/ytsearch/internal/aliasmap"
	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/playlist"
)

// ScopeKind distinguishes the three concrete scope variants. Spec §9
// replaces the original's CommandScope inheritance hierarchy with this
// tagged variant plus the shared fields below.
type ScopeKind int

const (
	KindVideos ScopeKind = iota
	KindPlaylist
	KindChannel
)

func (k ScopeKind) String() string {
	switch k {
	case KindVideos:
		return "videos"
	case KindPlaylist:
		return "playlist"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// ValidationResult is the outcome of validating a Scope's alias, per
// §3. IsRemoteValidated holds iff Playlist or Video is populated;
// WellStructuredAliases records every syntactically valid
// interpretation considered during pre-validation (e.g. a channel
// alias is simultaneously a well-structured handle and a well-structured
// slug), so remote validation knows every candidate to try.
type ValidationResult struct {
	ID                    string
	URL                   string
	WellStructuredAliases []string

	// Playlist is owned here, not by the Scope directly, breaking the
	// playlist<->scope<->validation cycle per §9: any reference back to
	// the owning scope is logical (a storage key), never a pointer.
	Playlist *playlist.Playlist
	Video    *domain.Video
}

func (v ValidationResult) IsRemoteValidated() bool {
	return v.Playlist != nil || v.Video != nil
}

// Scope is the shared record underlying all three scope variants
// (§9 "tagged variant plus a shared Scope record of common fields").
// Only the fields relevant to Kind are populated by callers; the zero
// value of the others is ignored.
type Scope struct {
	Kind ScopeKind
	// Key is the storage key prefix used for playlist/index-shard/
	// search-subcache persistence (§6).
	Key string

	// VideoIDs is populated for KindVideos.
	VideoIDs []domain.VideoId

	// Alias, Skip, Take and CacheHours are populated for KindPlaylist
	// and KindChannel.
	Alias      string
	Skip       int
	Take       int
	CacheHours int

	Validated ValidationResult
}

// NewVideosScope builds a scope over an explicit set of videos.
func NewVideosScope(key string, ids []domain.VideoId) Scope {
	return Scope{Kind: KindVideos, Key: key, VideoIDs: ids}
}

// NewPlaylistScope builds a scope over a playlist alias (URL or bare
// id), paging videos[skip:skip+take].
func NewPlaylistScope(key, alias string, skip, take, cacheHours int) Scope {
	return Scope{Kind: KindPlaylist, Key: key, Alias: alias, Skip: skip, Take: take, CacheHours: cacheHours}
}

// NewChannelScope builds a scope over a channel's implicit uploads
// playlist.
func NewChannelScope(key, alias string, skip, take, cacheHours int) Scope {
	return Scope{Kind: KindChannel, Key: key, Alias: alias, Skip: skip, Take: take, CacheHours: cacheHours}
}

// Describe renders a short human label for progress/notification
// messages, dispatching on Kind the way the capability interface
// described in §9 would.
func (s Scope) Describe() string {
	switch s.Kind {
	case KindVideos:
		return fmt.Sprintf("%d video(s)", len(s.VideoIDs))
	case KindPlaylist:
		return fmt.Sprintf("playlist %q", s.Alias)
	case KindChannel:
		return fmt.Sprintf("channel %q", s.Alias)
	default:
		return "scope"
	}
}

// aliasCandidates returns every well-structured interpretation of a
// channel alias worth trying against the Remote. A bare id (starting
// "UC", 24 characters long) is only offered as an id candidate;
// everything else is offered as handle, slug and user, in that order,
// since syntax alone cannot disambiguate them (§4.E "pre-validation ...
// yields zero or more well-structured interpretations").
func aliasCandidates(alias string) []aliasmap.AliasType {
	trimmed := strings.TrimPrefix(alias, "@")
	if strings.HasPrefix(trimmed, "UC") && len(trimmed) == 24 {
		return []aliasmap.AliasType{aliasmap.ID}
	}
	return []aliasmap.AliasType{aliasmap.Handle, aliasmap.Slug, aliasmap.User}
}

// resolvedCandidate is one alias-type -> channel-id resolution
// considered during remote channel validation.
type resolvedCandidate struct {
	Type      aliasmap.AliasType
	ChannelID string
}

// resolveChannel tries every well-structured interpretation of alias
// against the Channel Alias Map first, then the Remote on a miss,
// returning every distinct channel id found along with which alias
// type(s) produced it. An ambiguity (more than one distinct id) is the
// caller's responsibility to turn into an InputError (§4.E, S3).
func resolveChannel(ctx context.Context, remote domain.Remote, aliases *aliasmap.Map, alias string) ([]resolvedCandidate, error) {
	var out []resolvedCandidate

	for _, t := range aliasCandidates(alias) {
		if id, found := aliases.Lookup(t, alias); found {
			if id != "" {
				out = append(out, resolvedCandidate{Type: t, ChannelID: id})
			}
			continue
		}

		var (
			ch  domain.RemoteChannel
			err error
		)
		switch t {
		case aliasmap.Handle:
			ch, err = remote.GetChannelByHandle(ctx, alias)
		case aliasmap.Slug:
			ch, err = remote.GetChannelBySlug(ctx, alias)
		case aliasmap.User:
			ch, err = remote.GetChannelByUser(ctx, alias)
		case aliasmap.ID:
			ch, err = remote.GetChannelByID(ctx, alias)
		}

		switch {
		case err == nil:
			aliases.Store(t, alias, ch.ID)
			out = append(out, resolvedCandidate{Type: t, ChannelID: ch.ID})
		case domain.IsNotFound(err):
			aliases.Store(t, alias, "")
		default:
			return nil, err
		}
	}

	return out, nil
}

// distinctChannelIDs returns the set of distinct channel ids among
// candidates, in first-seen order.
func distinctChannelIDs(candidates []resolvedCandidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	var ids []string
	for _, c := range candidates {
		if _, ok := seen[c.ChannelID]; ok {
			continue
		}
		seen[c.ChannelID] = struct{}{}
		ids = append(ids, c.ChannelID)
	}
	return ids
}

func channelURL(t aliasmap.AliasType, alias string) string {
	switch t {
	case aliasmap.Handle:
		return "https://www.youtube.com/@" + strings.TrimPrefix(alias, "@")
	case aliasmap.Slug:
		return "https://www.youtube.com/c/" + alias
	case aliasmap.User:
		return "https://www.youtube.com/user/" + alias
	default:
		return "https://www.youtube.com/channel/" + alias
	}
}
