package playlist

import (
	"context"
	"testing"
	"time"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

type fakeRemote struct {
	items []domain.RemotePlaylistItem
}

func (f *fakeRemote) GetVideo(ctx context.Context, id domain.VideoId) (domain.RemoteVideoMeta, error) {
	return domain.RemoteVideoMeta{}, nil
}
func (f *fakeRemote) GetChannelByID(ctx context.Context, id string) (domain.RemoteChannel, error) {
	return domain.RemoteChannel{ID: id, UploadsID: "UU" + id}, nil
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
	return domain.RemotePlaylistMeta{ID: id, Title: "Test Playlist"}, nil
}
func (f *fakeRemote) GetPlaylistItems(ctx context.Context, playlistID string, cb func(domain.RemotePlaylistItem) error) error {
	for _, it := range f.items {
		if err := cb(it); err != nil {
			return err
		}
	}
	return nil
}
func (f *fakeRemote) GetChannelUploads(ctx context.Context, channelID string, cb func(domain.RemotePlaylistItem) error) error {
	return f.GetPlaylistItems(ctx, "UU"+channelID, cb)
}
func (f *fakeRemote) GetCaptionTrack(ctx context.Context, id domain.VideoId, info domain.RemoteCaptionInfo) ([]domain.Caption, error) {
	return nil, nil
}

func mkItems(n int) []domain.RemotePlaylistItem {
	items := make([]domain.RemotePlaylistItem, n)
	for i := 0; i < n; i++ {
		items[i] = domain.RemotePlaylistItem{VideoID: domain.VideoId(string(rune('a' + i)))}
	}
	return items
}

func TestRefreshSmallPlaylistCompletesSynchronously(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	remote := &fakeRemote{items: mkItems(3)}
	cache := New(kv, remote, 50)

	p, task, err := cache.Refresh(context.Background(), "scope1", Source{PlaylistID: "PL1"}, 3, time.Hour)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(p.Videos) != 3 {
		t.Fatalf("want 3 videos, got %d", len(p.Videos))
	}
	if task != nil {
		<-task.Done()
	}
}

func TestRefreshReturnsImmediatelyWhenFresh(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	remote := &fakeRemote{items: mkItems(3)}
	cache := New(kv, remote, 50)

	p1, task1, err := cache.Refresh(context.Background(), "scope2", Source{PlaylistID: "PL1"}, 3, time.Hour)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if task1 != nil {
		<-task1.Done()
	}
	if len(p1.Videos) != 3 {
		t.Fatalf("want 3 videos, got %d", len(p1.Videos))
	}

	p2, task2, err := cache.Refresh(context.Background(), "scope2", Source{PlaylistID: "PL1"}, 3, time.Hour)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if task2 != nil {
		t.Fatal("expected no background refresh task for a fresh cache")
	}
	if len(p2.Videos) != 3 {
		t.Fatalf("want 3 videos, got %d", len(p2.Videos))
	}
}
