package videocache

import (
	"context"
	"errors"
	"testing"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

type fakeRemote struct {
	video    domain.RemoteVideoMeta
	captions map[string][]domain.Caption
	failLang string
}

func (f *fakeRemote) GetVideo(ctx context.Context, id domain.VideoId) (domain.RemoteVideoMeta, error) {
	return f.video, nil
}
func (f *fakeRemote) GetChannelByID(ctx context.Context, id string) (domain.RemoteChannel, error) {
	return domain.RemoteChannel{}, nil
}
func (f *fakeRemote) GetChannelByHandle(ctx context.Context, h string) (domain.RemoteChannel, error) {
	return domain.RemoteChannel{}, nil
}
func (f *fakeRemote) GetChannelBySlug(ctx context.Context, s string) (domain.RemoteChannel, error) {
	return domain.RemoteChannel{}, nil
}
func (f *fakeRemote) GetChannelByUser(ctx context.Context, u string) (domain.RemoteChannel, error) {
	return domain.RemoteChannel{}, nil
}
func (f *fakeRemote) GetPlaylist(ctx context.Context, id string) (domain.RemotePlaylistMeta, error) {
	return domain.RemotePlaylistMeta{}, nil
}
func (f *fakeRemote) GetPlaylistItems(ctx context.Context, id string, cb func(domain.RemotePlaylistItem) error) error {
	return nil
}
func (f *fakeRemote) GetChannelUploads(ctx context.Context, id string, cb func(domain.RemotePlaylistItem) error) error {
	return nil
}
func (f *fakeRemote) GetCaptionTrack(ctx context.Context, id domain.VideoId, info domain.RemoteCaptionInfo) ([]domain.Caption, error) {
	if info.LanguageName == f.failLang {
		return nil, errors.New("download failed")
	}
	return f.captions[info.LanguageName], nil
}

func TestGetVideoFetchesOnMiss(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	remote := &fakeRemote{video: domain.RemoteVideoMeta{ID: "v1", Title: "Hello"}}
	cache := New(kv, remote)

	v, _, err := cache.GetVideo(context.Background(), "v1", false)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if v.Title != "Hello" || !v.Unindexed {
		t.Fatalf("unexpected video: %+v", v)
	}

	v2, ok, err := cache.Peek("v1")
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if v2.Title != "Hello" {
		t.Fatalf("unexpected cached video: %+v", v2)
	}
}

func TestGetVideoCapturesPerTrackCaptionErrors(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	remote := &fakeRemote{
		video: domain.RemoteVideoMeta{
			ID: "v1", Title: "Hello",
			CaptionManifest: []domain.RemoteCaptionInfo{
				{LanguageName: "en", TrackID: "t1"},
				{LanguageName: "fr", TrackID: "t2"},
			},
		},
		captions: map[string][]domain.Caption{"en": {{At: 0, Text: "hi"}}},
		failLang: "fr",
	}
	cache := New(kv, remote)

	v, notif, err := cache.GetVideo(context.Background(), "v1", true)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if len(v.CaptionTracks) != 2 {
		t.Fatalf("want 2 tracks, got %d", len(v.CaptionTracks))
	}
	en, ok := v.Track("en")
	if !ok || !en.Downloaded() {
		t.Fatalf("expected en track downloaded, got %+v", en)
	}
	fr, ok := v.Track("fr")
	if !ok || fr.Downloaded() || fr.Err() == nil {
		t.Fatalf("expected fr track to have failed, got %+v", fr)
	}
	if notif.Empty() {
		t.Fatal("expected a non-empty notification")
	}
}

func TestCaptionTrackErrorSurvivesCacheReload(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	remote := &fakeRemote{
		video: domain.RemoteVideoMeta{
			ID: "v1", Title: "Hello",
			CaptionManifest: []domain.RemoteCaptionInfo{
				{LanguageName: "en", TrackID: "t1"},
				{LanguageName: "fr", TrackID: "t2"},
			},
		},
		captions: map[string][]domain.Caption{"en": {{At: 0, Text: "hi"}}},
		failLang: "fr",
	}
	cache := New(kv, remote)

	if _, _, err := cache.GetVideo(context.Background(), "v1", true); err != nil {
		t.Fatalf("get video: %v", err)
	}

	// A failed caption track's Err cannot survive a JSON round-trip as
	// an interface value; only ErrMessage does. Peek forces a fresh
	// read from disk, so this exercises that round-trip directly.
	v, ok, err := cache.Peek("v1")
	if err != nil {
		t.Fatalf("peek after reload: %v", err)
	}
	if !ok {
		t.Fatal("expected the video to still be cached, not evicted as corrupt")
	}
	if len(v.CaptionTracks) != 2 {
		t.Fatalf("want 2 tracks after reload, got %d", len(v.CaptionTracks))
	}
	fr, ok := v.Track("fr")
	if !ok || fr.Downloaded() || fr.ErrMessage == "" {
		t.Fatalf("expected fr track's error to survive reload, got %+v", fr)
	}
	en, ok := v.Track("en")
	if !ok || !en.Downloaded() {
		t.Fatalf("expected en track to remain downloaded after reload, got %+v", en)
	}
}
