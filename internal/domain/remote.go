package domain

import (
	"context"
	"time"
)

// RemoteChannel is the subset of a YouTube channel's metadata the
// system needs: its canonical ID, display name and uploads playlist.
type RemoteChannel struct {
	ID        string
	Name      string
	UploadsID string
}

// RemotePlaylistMeta is a playlist's metadata, without its membership.
type RemotePlaylistMeta struct {
	ID           string
	Title        string
	ThumbnailURL string
	ChannelID    string
}

// RemotePlaylistItem is one entry of a playlist, in playlist order.
type RemotePlaylistItem struct {
	VideoID    VideoId
	UploadedAt *time.Time
}

// RemoteVideoMeta is a video's metadata as returned by the remote.
type RemoteVideoMeta struct {
	ID              VideoId
	Title           string
	Description     string
	Channel         string
	ThumbnailURL    string
	Keywords        []string
	UploadedUTC     *time.Time
	CaptionManifest []RemoteCaptionInfo
}

// RemoteCaptionInfo identifies a caption track available for download,
// without its contents.
type RemoteCaptionInfo struct {
	LanguageName string
	TrackID      string
}

// Remote is the injected collaborator for all network access to
// YouTube. It is deliberately minimal (design §6): the concrete HTTP
// surface of the YouTube Data API is not part of the core's scope, only
// this contract is.
type Remote interface {
	GetVideo(ctx context.Context, id VideoId) (RemoteVideoMeta, error)
	GetChannelByID(ctx context.Context, id string) (RemoteChannel, error)
	GetChannelByHandle(ctx context.Context, handle string) (RemoteChannel, error)
	GetChannelBySlug(ctx context.Context, slug string) (RemoteChannel, error)
	GetChannelByUser(ctx context.Context, user string) (RemoteChannel, error)
	GetPlaylist(ctx context.Context, id string) (RemotePlaylistMeta, error)
	// GetPlaylistItems invokes cb for each item of the playlist in
	// order, stopping early if cb returns an error or ctx is cancelled.
	GetPlaylistItems(ctx context.Context, playlistID string, cb func(RemotePlaylistItem) error) error
	// GetChannelUploads is GetPlaylistItems against the channel's
	// implicit uploads playlist.
	GetChannelUploads(ctx context.Context, channelID string, cb func(RemotePlaylistItem) error) error
	GetCaptionTrack(ctx context.Context, videoID VideoId, info RemoteCaptionInfo) ([]Caption, error)
}
