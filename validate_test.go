package ytsearch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ejv2/ytsearch/internal/aliasmap"
	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/kvstore"
	"github.com/ejv2/ytsearch/internal/playlist"
	"github.com/ejv2/ytsearch/internal/videocache"
)

// remoteStub is a domain.Remote fake with per-test overridable behaviour,
// in the spirit of internal/search's fakeRemote. callCount lets a test
// assert that pre-validation failures never reach the network.
type remoteStub struct {
	handle, slug, user, byID map[string]domain.RemoteChannel
	playlists                map[string]domain.RemotePlaylistMeta
	videos                   map[domain.VideoId]domain.RemoteVideoMeta

	callCount atomic.Int64
}

func (r *remoteStub) calls() int64 { return r.callCount.Load() }

func newRemoteStub() *remoteStub {
	return &remoteStub{
		handle:    map[string]domain.RemoteChannel{},
		slug:      map[string]domain.RemoteChannel{},
		user:      map[string]domain.RemoteChannel{},
		byID:      map[string]domain.RemoteChannel{},
		playlists: map[string]domain.RemotePlaylistMeta{},
		videos:    map[domain.VideoId]domain.RemoteVideoMeta{},
	}
}

func (r *remoteStub) GetVideo(ctx context.Context, id domain.VideoId) (domain.RemoteVideoMeta, error) {
	r.callCount.Add(1)
	v, ok := r.videos[id]
	if !ok {
		return domain.RemoteVideoMeta{}, domain.ErrNotFound
	}
	return v, nil
}
func (r *remoteStub) GetChannelByID(ctx context.Context, id string) (domain.RemoteChannel, error) {
	r.callCount.Add(1)
	c, ok := r.byID[id]
	if !ok {
		return domain.RemoteChannel{}, domain.ErrNotFound
	}
	return c, nil
}
func (r *remoteStub) GetChannelByHandle(ctx context.Context, h string) (domain.RemoteChannel, error) {
	r.callCount.Add(1)
	c, ok := r.handle[h]
	if !ok {
		return domain.RemoteChannel{}, domain.ErrNotFound
	}
	return c, nil
}
func (r *remoteStub) GetChannelBySlug(ctx context.Context, s string) (domain.RemoteChannel, error) {
	r.callCount.Add(1)
	c, ok := r.slug[s]
	if !ok {
		return domain.RemoteChannel{}, domain.ErrNotFound
	}
	return c, nil
}
func (r *remoteStub) GetChannelByUser(ctx context.Context, u string) (domain.RemoteChannel, error) {
	r.callCount.Add(1)
	c, ok := r.user[u]
	if !ok {
		return domain.RemoteChannel{}, domain.ErrNotFound
	}
	return c, nil
}
func (r *remoteStub) GetPlaylist(ctx context.Context, id string) (domain.RemotePlaylistMeta, error) {
	r.callCount.Add(1)
	p, ok := r.playlists[id]
	if !ok {
		return domain.RemotePlaylistMeta{}, domain.ErrNotFound
	}
	return p, nil
}
func (r *remoteStub) GetPlaylistItems(ctx context.Context, id string, cb func(domain.RemotePlaylistItem) error) error {
	r.callCount.Add(1)
	return nil
}
func (r *remoteStub) GetChannelUploads(ctx context.Context, id string, cb func(domain.RemotePlaylistItem) error) error {
	r.callCount.Add(1)
	return nil
}
func (r *remoteStub) GetCaptionTrack(ctx context.Context, id domain.VideoId, info domain.RemoteCaptionInfo) ([]domain.Caption, error) {
	r.callCount.Add(1)
	return nil, nil
}

func newAliasMap(t *testing.T) *aliasmap.Map {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	m, err := aliasmap.New(kv, time.Minute)
	if err != nil {
		t.Fatalf("new aliasmap: %v", err)
	}
	return m
}

func TestValidateQueryRejectsEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", "***", "\t%|&"} {
		if err := ValidateQuery(q); err == nil {
			t.Fatalf("query %q: expected InputError, got nil", q)
		}
	}
	if err := ValidateQuery("gophers"); err != nil {
		t.Fatalf("unexpected error for a real query: %v", err)
	}
}

func TestValidateOrderByRejectsMutuallyExclusive(t *testing.T) {
	if err := ValidateOrderBy([]string{"uploaded", "score"}); err == nil {
		t.Fatal("expected InputError for uploaded+score")
	}
	if err := ValidateOrderBy([]string{"uploaded"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPreValidateRejectsMalformedVideoID(t *testing.T) {
	scope := NewVideosScope("k", []domain.VideoId{"short"})
	if _, err := PreValidate(scope); err == nil {
		t.Fatal("expected InputError for malformed video id")
	}
}

func TestPreValidateRejectsMalformedPlaylistAlias(t *testing.T) {
	scope := NewPlaylistScope("k", "not-a-playlist", 0, 10, 24)
	if _, err := PreValidate(scope); err == nil {
		t.Fatal("expected InputError for malformed playlist alias")
	}
}

func TestPreValidateChannelRecordsWellStructuredAliases(t *testing.T) {
	scope := NewChannelScope("k", "@gopher", 0, 10, 24)
	scope, err := PreValidate(scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scope.Validated.WellStructuredAliases) != 3 {
		t.Fatalf("expected 3 well-structured aliases, got %v", scope.Validated.WellStructuredAliases)
	}
}

func TestRemoteValidateUnreachableVideo(t *testing.T) {
	remote := newRemoteStub()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	videos := videocache.New(kv, remote)
	aliases := newAliasMap(t)
	plc := playlist.New(kv, remote, 50)

	scope := NewVideosScope("k", []domain.VideoId{"dQw4w9WgXcQ"})
	_, err = RemoteValidate(context.Background(), scope, remote, aliases, plc, videos)
	var ie *domain.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func TestRemoteValidateUnreachablePlaylist(t *testing.T) {
	remote := newRemoteStub()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	videos := videocache.New(kv, remote)
	aliases := newAliasMap(t)
	plc := playlist.New(kv, remote, 50)

	scope := NewPlaylistScope("k", "PLdoesnotexist", 0, 10, 24)
	_, err = RemoteValidate(context.Background(), scope, remote, aliases, plc, videos)
	var ie *domain.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func TestRemoteValidateAmbiguousChannel(t *testing.T) {
	remote := newRemoteStub()
	remote.handle["@gopher"] = domain.RemoteChannel{ID: "UCaaaaaaaaaaaaaaaaaaaaaa", Name: "Gopher Handle", UploadsID: "UUaaa"}
	remote.slug["@gopher"] = domain.RemoteChannel{ID: "UCbbbbbbbbbbbbbbbbbbbbbb", Name: "Gopher Slug", UploadsID: "UUbbb"}

	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	videos := videocache.New(kv, remote)
	aliases := newAliasMap(t)
	plc := playlist.New(kv, remote, 50)

	scope := NewChannelScope("k", "@gopher", 0, 10, 24)
	_, err = RemoteValidate(context.Background(), scope, remote, aliases, plc, videos)
	var ie *domain.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InputError, got %v", err)
	}
	if !strings.HasPrefix(ie.Message, "Channel alias '@gopher' is ambiguous:") {
		t.Fatalf("unexpected message: %s", ie.Message)
	}
}

func TestRemoteValidateResolvesSingleChannel(t *testing.T) {
	remote := newRemoteStub()
	remote.handle["@gopher"] = domain.RemoteChannel{ID: "UCaaaaaaaaaaaaaaaaaaaaaa", Name: "Gopher", UploadsID: "UUaaa"}
	remote.byID["UCaaaaaaaaaaaaaaaaaaaaaa"] = domain.RemoteChannel{ID: "UCaaaaaaaaaaaaaaaaaaaaaa", Name: "Gopher", UploadsID: "UUaaa"}

	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	videos := videocache.New(kv, remote)
	aliases := newAliasMap(t)
	plc := playlist.New(kv, remote, 50)

	scope := NewChannelScope("k", "@gopher", 0, 10, 24)
	scope, err = RemoteValidate(context.Background(), scope, remote, aliases, plc, videos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.Validated.ID != "UCaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("unexpected resolved id: %q", scope.Validated.ID)
	}
	if !scope.Validated.IsRemoteValidated() {
		t.Fatal("expected scope to be remote-validated")
	}
}
