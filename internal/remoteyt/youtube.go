// Package remoteyt implements domain.Remote against the real YouTube
// Data API v3.
package remoteyt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ejv2/ytsearch/internal/domain"
)

func isHTTPError(status int) bool {
	return status < 200 || status >= 300
}

// apiErrToRemote classifies a YouTube API error into the project's
// error taxonomy (§7): a 404 from the API is ErrNotFound, anything
// else is a TransportError.
func apiErrToRemote(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 404 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return domain.NewTransportError(op, err)
}

// youtubeRemote implements domain.Remote using google.golang.org/api/youtube/v3.
type youtubeRemote struct {
	svc *youtube.Service
}

// NewYouTubeRemote constructs a Remote backed by the real YouTube Data
// API, authenticated with the given API key.
func NewYouTubeRemote(ctx context.Context, apiKey string) (domain.Remote, error) {
	if apiKey == "" {
		return nil, domain.NewInputError("remoteyt: api key is required")
	}

	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, domain.NewTransportError("new youtube service", err)
	}

	return &youtubeRemote{svc: svc}, nil
}

func (r *youtubeRemote) GetVideo(ctx context.Context, id domain.VideoId) (domain.RemoteVideoMeta, error) {
	call := r.svc.Videos.List([]string{"snippet"}).Id(string(id)).Context(ctx)
	resp, err := call.Do()
	if err != nil {
		return domain.RemoteVideoMeta{}, apiErrToRemote("get video "+string(id), err)
	}
	if isHTTPError(resp.HTTPStatusCode) {
		return domain.RemoteVideoMeta{}, domain.NewTransportError("get video "+string(id), fmt.Errorf("http status %d", resp.HTTPStatusCode))
	}
	if len(resp.Items) == 0 {
		return domain.RemoteVideoMeta{}, fmt.Errorf("get video %s: %w", id, domain.ErrNotFound)
	}

	v := resp.Items[0]
	sn := v.Snippet

	meta := domain.RemoteVideoMeta{
		ID:           id,
		Title:        sn.Title,
		Description:  sn.Description,
		Channel:      sn.ChannelTitle,
		Keywords:     sn.Tags,
		ThumbnailURL: bestThumbnail(sn.Thumbnails),
	}
	if t, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
		meta.UploadedUTC = &t
	}

	manifest, err := r.listCaptions(ctx, id)
	if err != nil {
		return domain.RemoteVideoMeta{}, err
	}
	meta.CaptionManifest = manifest

	return meta, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	switch {
	case t.Maxres != nil:
		return t.Maxres.Url
	case t.High != nil:
		return t.High.Url
	case t.Medium != nil:
		return t.Medium.Url
	case t.Default != nil:
		return t.Default.Url
	default:
		return ""
	}
}

func (r *youtubeRemote) listCaptions(ctx context.Context, id domain.VideoId) ([]domain.RemoteCaptionInfo, error) {
	resp, err := r.svc.Captions.List([]string{"snippet"}, string(id)).Context(ctx).Do()
	if err != nil {
		return nil, apiErrToRemote("list captions "+string(id), err)
	}

	out := make([]domain.RemoteCaptionInfo, 0, len(resp.Items))
	for _, c := range resp.Items {
		if c == nil || c.Snippet == nil {
			continue
		}
		out = append(out, domain.RemoteCaptionInfo{
			LanguageName: c.Snippet.Language,
			TrackID:      c.Id,
		})
	}
	return out, nil
}

func (r *youtubeRemote) channelFromResponse(op string, resp *youtube.ChannelListResponse) (domain.RemoteChannel, error) {
	if isHTTPError(resp.HTTPStatusCode) {
		return domain.RemoteChannel{}, domain.NewTransportError(op, fmt.Errorf("http status %d", resp.HTTPStatusCode))
	}
	if len(resp.Items) == 0 {
		return domain.RemoteChannel{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}

	c := resp.Items[0]
	return domain.RemoteChannel{
		ID:        c.Id,
		Name:      c.Snippet.Title,
		UploadsID: c.ContentDetails.RelatedPlaylists.Uploads,
	}, nil
}

func (r *youtubeRemote) GetChannelByID(ctx context.Context, id string) (domain.RemoteChannel, error) {
	resp, err := r.svc.Channels.List([]string{"snippet", "contentDetails"}).Id(id).Context(ctx).Do()
	if err != nil {
		return domain.RemoteChannel{}, apiErrToRemote("get channel by id "+id, err)
	}
	return r.channelFromResponse("get channel by id "+id, resp)
}

func (r *youtubeRemote) GetChannelByHandle(ctx context.Context, handle string) (domain.RemoteChannel, error) {
	resp, err := r.svc.Channels.List([]string{"snippet", "contentDetails"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return domain.RemoteChannel{}, apiErrToRemote("get channel by handle "+handle, err)
	}
	return r.channelFromResponse("get channel by handle "+handle, resp)
}

func (r *youtubeRemote) GetChannelBySlug(ctx context.Context, slug string) (domain.RemoteChannel, error) {
	// The v3 API has no direct "slug" selector; a custom-URL slug
	// resolves the same way a handle does.
	return r.GetChannelByHandle(ctx, slug)
}

func (r *youtubeRemote) GetChannelByUser(ctx context.Context, user string) (domain.RemoteChannel, error) {
	resp, err := r.svc.Channels.List([]string{"snippet", "contentDetails"}).ForUsername(user).Context(ctx).Do()
	if err != nil {
		return domain.RemoteChannel{}, apiErrToRemote("get channel by user "+user, err)
	}
	return r.channelFromResponse("get channel by user "+user, resp)
}

func (r *youtubeRemote) GetPlaylist(ctx context.Context, id string) (domain.RemotePlaylistMeta, error) {
	resp, err := r.svc.Playlists.List([]string{"snippet"}).Id(id).Context(ctx).Do()
	if err != nil {
		return domain.RemotePlaylistMeta{}, apiErrToRemote("get playlist "+id, err)
	}
	if isHTTPError(resp.HTTPStatusCode) {
		return domain.RemotePlaylistMeta{}, domain.NewTransportError("get playlist "+id, fmt.Errorf("http status %d", resp.HTTPStatusCode))
	}
	if len(resp.Items) == 0 {
		return domain.RemotePlaylistMeta{}, fmt.Errorf("get playlist %s: %w", id, domain.ErrNotFound)
	}

	p := resp.Items[0]
	return domain.RemotePlaylistMeta{
		ID:           p.Id,
		Title:        p.Snippet.Title,
		ThumbnailURL: bestThumbnail(p.Snippet.Thumbnails),
		ChannelID:    p.Snippet.ChannelId,
	}, nil
}

func (r *youtubeRemote) GetPlaylistItems(ctx context.Context, playlistID string, cb func(domain.RemotePlaylistItem) error) error {
	call := r.svc.PlaylistItems.List([]string{"contentDetails"}).PlaylistId(playlistID).MaxResults(50)

	var cbErr error
	n := 0
	err := call.Pages(ctx, func(resp *youtube.PlaylistItemListResponse) error {
		n++
		if isHTTPError(resp.HTTPStatusCode) {
			return fmt.Errorf("http status %d", resp.HTTPStatusCode)
		}
		for _, item := range resp.Items {
			if item == nil || item.ContentDetails == nil {
				continue
			}
			pi := domain.RemotePlaylistItem{VideoID: domain.VideoId(item.ContentDetails.VideoId)}
			if item.ContentDetails.VideoPublishedAt != "" {
				if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
					pi.UploadedAt = &t
				}
			}
			if err := cb(pi); err != nil {
				cbErr = err
				return io.EOF
			}
		}
		return nil
	})

	if cbErr != nil {
		return cbErr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return apiErrToRemote(fmt.Sprintf("get playlist items %s (page %d)", playlistID, n), err)
	}
	return nil
}

func (r *youtubeRemote) GetChannelUploads(ctx context.Context, channelID string, cb func(domain.RemotePlaylistItem) error) error {
	ch, err := r.GetChannelByID(ctx, channelID)
	if err != nil {
		return err
	}
	return r.GetPlaylistItems(ctx, ch.UploadsID, cb)
}

func (r *youtubeRemote) GetCaptionTrack(ctx context.Context, videoID domain.VideoId, info domain.RemoteCaptionInfo) ([]domain.Caption, error) {
	call := r.svc.Captions.Download(info.TrackID).Context(ctx).Tfmt("srt")
	resp, err := call.Download()
	if err != nil {
		return nil, apiErrToRemote(fmt.Sprintf("download caption %s/%s", videoID, info.LanguageName), err)
	}
	defer resp.Body.Close()

	return parseSRT(resp.Body)
}

// parseSRT parses an SRT-format caption stream into Caption cues,
// dropping sequence numbers and collapsing multi-line cue text into a
// single string (normalization happens later, per §4.H).
func parseSRT(r io.Reader) ([]domain.Caption, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []domain.Caption
	var textLines []string
	var startSeconds int
	haveTiming := false

	flush := func() {
		if haveTiming && len(textLines) > 0 {
			out = append(out, domain.Caption{At: startSeconds, Text: strings.Join(textLines, " ")})
		}
		textLines = nil
		haveTiming = false
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			flush()
		case isSequenceNumber(line):
			// discard
		case strings.Contains(line, "-->"):
			flush()
			if s, ok := parseSRTTimestamp(line); ok {
				startSeconds = s
				haveTiming = true
			}
		default:
			textLines = append(textLines, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	return out, nil
}

func isSequenceNumber(line string) bool {
	if line == "" {
		return false
	}
	_, err := strconv.Atoi(line)
	return err == nil
}

// parseSRTTimestamp parses the start side of an SRT timing line
// ("00:00:01,500 --> 00:00:03,000") into whole seconds.
func parseSRTTimestamp(line string) (int, bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, false
	}
	start := strings.TrimSpace(parts[0])

	var h, m, s, ms int
	start = strings.Replace(start, ",", ".", 1)
	if _, err := fmt.Sscanf(start, "%d:%d:%d.%d", &h, &m, &s, &ms); err != nil {
		return 0, false
	}

	return h*3600 + m*60 + s, true
}
