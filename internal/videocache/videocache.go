// Package videocache implements the Video Cache (design §4.G): fetch,
// persist and re-hydrate video metadata and caption tracks, backed by
// the KV Store.
package videocache

import (
	"context"
	"fmt"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

// Notification summarises a get_video call's per-track caption errors,
// per §4.G "Notifications summarise per-track errors".
type Notification struct {
	VideoID    domain.VideoId
	TrackFails map[string]error
}

func (n Notification) Empty() bool { return len(n.TrackFails) == 0 }

// Cache persists Video values keyed by VideoId.
type Cache struct {
	kv     *kvstore.Store
	remote domain.Remote
}

func New(kv *kvstore.Store, remote domain.Remote) *Cache {
	return &Cache{kv: kv, remote: remote}
}

func storeKey(id domain.VideoId) string { return "video." + string(id) }

// Peek returns a cached video without touching the network, or
// (Video{}, false) on a miss.
func (c *Cache) Peek(id domain.VideoId) (domain.Video, bool, error) {
	var v domain.Video
	ok, err := c.kv.Get(storeKey(id), &v)
	if err != nil {
		return domain.Video{}, false, err
	}
	return v, ok, nil
}

func (c *Cache) save(v domain.Video) error {
	return c.kv.Set(storeKey(v.ID), v)
}

// GetVideo returns the cached video, fetching it from the Remote on a
// miss. If downloadCaptions is true and the cached copy's captions are
// missing or incomplete, it (re)downloads the outstanding tracks.
func (c *Cache) GetVideo(ctx context.Context, id domain.VideoId, downloadCaptions bool) (domain.Video, Notification, error) {
	v, ok, err := c.Peek(id)
	if err != nil {
		return domain.Video{}, Notification{}, err
	}

	if !ok {
		v, err = c.fetch(ctx, id)
		if err != nil {
			return domain.Video{}, Notification{}, err
		}
		v.Unindexed = true
	}

	notif := Notification{VideoID: id}
	if downloadCaptions && (!v.HasCaptions() || !v.CaptionsComplete()) {
		v, notif = c.downloadCaptions(ctx, v)
	}

	if err := c.save(v); err != nil {
		return domain.Video{}, notif, err
	}

	return v, notif, nil
}

func (c *Cache) fetch(ctx context.Context, id domain.VideoId) (domain.Video, error) {
	meta, err := c.remote.GetVideo(ctx, id)
	if err != nil {
		return domain.Video{}, err
	}

	return domain.Video{
		ID:           meta.ID,
		Title:        meta.Title,
		Description:  meta.Description,
		Channel:      meta.Channel,
		ThumbnailURL: meta.ThumbnailURL,
		Keywords:     meta.Keywords,
		UploadedUTC:  meta.UploadedUTC,
		Unindexed:    true,
	}, nil
}

// downloadCaptions fetches captions for every manifest entry not yet
// present (or previously failed) on v, capturing per-track errors
// instead of failing the whole video, per §4.G.
func (c *Cache) downloadCaptions(ctx context.Context, v domain.Video) (domain.Video, Notification) {
	notif := Notification{VideoID: v.ID, TrackFails: make(map[string]error)}

	meta, err := c.remote.GetVideo(ctx, v.ID)
	if err != nil {
		notif.TrackFails["*"] = err
		return v, notif
	}

	existing := make(map[string]domain.CaptionTrack, len(v.CaptionTracks))
	for _, t := range v.CaptionTracks {
		existing[t.LanguageName] = t
	}

	tracks := make([]domain.CaptionTrack, 0, len(meta.CaptionManifest))
	for _, info := range meta.CaptionManifest {
		if t, ok := existing[info.LanguageName]; ok && t.Downloaded() {
			tracks = append(tracks, t)
			continue
		}

		captions, err := c.remote.GetCaptionTrack(ctx, v.ID, info)
		if err != nil {
			notif.TrackFails[info.LanguageName] = err
			tracks = append(tracks, domain.CaptionTrack{
				LanguageName: info.LanguageName,
				ErrMessage:   err.Error(),
			})
			continue
		}

		tracks = append(tracks, domain.CaptionTrack{
			LanguageName: info.LanguageName,
			Captions:     domain.SortAndDedupeCaptions(captions),
		})
	}

	v.CaptionTracks = tracks
	return v, notif
}

// MarkIndexed persists v, typically after a successful text-index Add,
// to clear its Unindexed flag (§4.I "clears unindexed_flag").
func (c *Cache) MarkIndexed(v domain.Video) error {
	return c.save(v)
}

// Purge removes a video's cached entry. It is the supporting path for
// the cache-purge command surfaced at the service layer.
func (c *Cache) Purge(id domain.VideoId) error {
	return c.kv.Set(storeKey(id), nil)
}

// String renders a notification for logging.
func (n Notification) String() string {
	if n.Empty() {
		return fmt.Sprintf("video %s: captions ok", n.VideoID)
	}
	return fmt.Sprintf("video %s: %d caption track(s) failed", n.VideoID, len(n.TrackFails))
}
