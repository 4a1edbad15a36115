package ytsearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ejv2/ytsearch/internal/aliasmap"
	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/playlist"
	"github.com/ejv2/ytsearch/internal/videocache"
)

// controlCharQuery matches a query made up only of the control
// characters called out in §7: if nothing else remains after stripping
// them, the query is treated as empty.
var controlCharQuery = regexp.MustCompile(`^[*%|&"~>?()=, \t]*$`)

// videoIDPattern matches a syntactically well-formed 11-character video
// id (§3 "opaque 11-character identifier").
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var playlistIDPath = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
var videoIDPath = regexp.MustCompile(`(?:v=|youtu\.be/|embed/)([A-Za-z0-9_-]{11})`)

// ValidateQuery checks the pre-validation rule for an empty or
// control-characters-only query (§7 InputError, S2).
func ValidateQuery(query string) error {
	if query == "" || controlCharQuery.MatchString(query) {
		return domain.NewInputError("query is empty")
	}
	return nil
}

// ValidateOrderBy rejects the mutually exclusive "uploaded"+"score"
// combination at pre-validation (§4.J step 5, S4).
func ValidateOrderBy(orderBy []string) error {
	hasUploaded, hasScore := false, false
	for _, o := range orderBy {
		switch o {
		case "uploaded":
			hasUploaded = true
		case "score":
			hasScore = true
		}
	}
	if hasUploaded && hasScore {
		return domain.NewInputError("order_by cannot combine 'uploaded' and 'score'")
	}
	return nil
}

// extractVideoID pulls an 11-character video id out of a bare id or a
// youtube.com/youtu.be URL.
func extractVideoID(alias string) (domain.VideoId, bool) {
	if videoIDPattern.MatchString(alias) {
		return domain.VideoId(alias), true
	}
	if m := videoIDPath.FindStringSubmatch(alias); m != nil {
		return domain.VideoId(m[1]), true
	}
	return "", false
}

// extractPlaylistID pulls a playlist id out of a bare id or a
// youtube.com/playlist?list=... URL.
func extractPlaylistID(alias string) (string, bool) {
	if m := playlistIDPath.FindStringSubmatch(alias); m != nil {
		return m[1], true
	}
	if strings.HasPrefix(alias, "PL") || strings.HasPrefix(alias, "UU") || strings.HasPrefix(alias, "OL") {
		return alias, true
	}
	return "", false
}

// PreValidate performs the pure-syntactic half of §4.E: it rejects
// unparseable aliases without touching the network and records every
// well-structured interpretation for remote validation to try.
func PreValidate(scope Scope) (Scope, error) {
	switch scope.Kind {
	case KindVideos:
		ids := make([]domain.VideoId, 0, len(scope.VideoIDs))
		for _, raw := range scope.VideoIDs {
			id, ok := extractVideoID(string(raw))
			if !ok {
				return scope, domain.NewInputError("not a well-formed video id: %q", raw)
			}
			ids = append(ids, id)
		}
		scope.VideoIDs = ids

	case KindPlaylist:
		if _, ok := extractPlaylistID(scope.Alias); !ok {
			return scope, domain.NewInputError("not a well-formed playlist alias: %q", scope.Alias)
		}

	case KindChannel:
		if strings.TrimSpace(scope.Alias) == "" {
			return scope, domain.NewInputError("channel alias is empty")
		}
		scope.Validated.WellStructuredAliases = aliasTypeStrings(aliasCandidates(scope.Alias))
	}

	return scope, nil
}

func aliasTypeStrings(types []aliasmap.AliasType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

// RemoteValidate performs the network-touching half of §4.E: resolving
// channel aliases, fetching playlist metadata and, for explicit video
// scopes, loading each video's metadata (never its captions).
func RemoteValidate(ctx context.Context, scope Scope, remote domain.Remote, aliases *aliasmap.Map, playlists *playlist.Cache, videos *videocache.Cache) (Scope, error) {
	switch scope.Kind {
	case KindVideos:
		for _, id := range scope.VideoIDs {
			v, _, err := videos.GetVideo(ctx, id, false)
			if err != nil {
				if domain.IsNotFound(err) {
					return scope, domain.NewInputError("video %q is unreachable", id)
				}
				return scope, err
			}
			if len(scope.VideoIDs) == 1 {
				scope.Validated.Video = &v
				scope.Validated.ID = string(id)
			}
		}

	case KindChannel:
		channelID, err := resolveChannelScope(ctx, scope, remote, aliases)
		if err != nil {
			return scope, err
		}
		scope.Validated.ID = channelID

		src := playlist.Source{ChannelID: channelID, Implicit: true}
		p, err := playlists.GetOrFetch(ctx, scope.Key, src)
		if err != nil {
			// Open Question 3 (resolved, DESIGN.md): the channel's
			// implicit uploads playlist is channel content, not a
			// user-supplied playlist, so its unavailability is
			// transient rather than an InputError.
			return scope, err
		}
		scope.Validated.Playlist = &p

	case KindPlaylist:
		playlistID, _ := extractPlaylistID(scope.Alias)
		src := playlist.Source{PlaylistID: playlistID}
		p, err := playlists.GetOrFetch(ctx, scope.Key, src)
		if err != nil {
			if domain.IsNotFound(err) {
				return scope, domain.NewInputError("playlist %q is unreachable", scope.Alias)
			}
			return scope, err
		}
		scope.Validated.ID = playlistID
		scope.Validated.URL = "https://www.youtube.com/playlist?list=" + playlistID
		scope.Validated.Playlist = &p
	}

	return scope, nil
}

// resolveChannelScope resolves a channel alias, turning a cross-type
// ambiguity into the InputError shape required by S3.
func resolveChannelScope(ctx context.Context, scope Scope, remote domain.Remote, aliases *aliasmap.Map) (string, error) {
	candidates, err := resolveChannel(ctx, remote, aliases, scope.Alias)
	if err != nil {
		return "", err
	}

	distinct := distinctChannelIDs(candidates)
	switch len(distinct) {
	case 0:
		return "", domain.NewInputError("channel alias %q could not be resolved", scope.Alias)
	case 1:
		return distinct[0], nil
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Channel alias '%s' is ambiguous:", scope.Alias)
		for _, c := range candidates {
			fmt.Fprintf(&sb, "\n\t%s -> %s", channelURL(c.Type, scope.Alias), "https://www.youtube.com/channel/"+c.ChannelID)
		}
		return "", domain.NewInputError("%s", sb.String())
	}
}
