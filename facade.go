package ytsearch

import (
	"context"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/remoteyt"
)

// The types below are aliases onto internal/domain so that consumers of
// this package never need to import the internal tree directly, while
// every component package underneath depends only on internal/domain.
type (
	VideoId       = domain.VideoId
	Caption       = domain.Caption
	CaptionTrack  = domain.CaptionTrack
	Video         = domain.Video
	Remote        = domain.Remote
	RemoteChannel = domain.RemoteChannel

	RemoteVideoMeta    = domain.RemoteVideoMeta
	RemotePlaylistMeta = domain.RemotePlaylistMeta
	RemotePlaylistItem = domain.RemotePlaylistItem
	RemoteCaptionInfo  = domain.RemoteCaptionInfo

	InputError     = domain.InputError
	TransportError = domain.TransportError
	StorageError   = domain.StorageError
	NamedError     = domain.NamedError
	BundledError   = domain.BundledError
)

var (
	ErrInput      = domain.ErrInput
	ErrTransport  = domain.ErrTransport
	ErrStorage    = domain.ErrStorage
	ErrQueryParse = domain.ErrQueryParse
	ErrCancelled  = domain.ErrCancelled
	ErrNotFound   = domain.ErrNotFound

	NewInputError     = domain.NewInputError
	NewTransportError = domain.NewTransportError
	NewStorageError   = domain.NewStorageError
)

// NewYouTubeRemote constructs a Remote backed by the real YouTube Data
// API, authenticated with the given API key.
func NewYouTubeRemote(ctx context.Context, apiKey string) (Remote, error) {
	return remoteyt.NewYouTubeRemote(ctx, apiKey)
}
