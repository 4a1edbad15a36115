// Package domain holds the value types shared by every layer of the
// search engine - video/caption metadata and the Remote contract - so
// that leaf packages never need to import the top-level facade
// package (which imports them).
package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// VideoId is an opaque 11-character YouTube video identifier. It is
// total-ordered so it can be used as a canonical set key.
type VideoId string

// Less gives VideoId a total order for canonical set keying.
func (v VideoId) Less(o VideoId) bool { return v < o }

func (v VideoId) String() string { return string(v) }

// Caption is a single subtitle cue.
type Caption struct {
	// At is the caption's start time, in seconds from the beginning of
	// the track.
	At int
	// Text is non-empty after trimming whitespace.
	Text string
}

// Normalized collapses internal whitespace runs in Text to single spaces
// and trims the result, per the Caption Full-Text rules (§4.H).
func (c Caption) Normalized() string {
	return strings.Join(strings.Fields(c.Text), " ")
}

// SortAndDedupeCaptions sorts captions by At and removes exact
// duplicates, per the CaptionTrack invariant that captions are "sorted
// by at ... and deduplicated".
func SortAndDedupeCaptions(in []Caption) []Caption {
	out := make([]Caption, 0, len(in))
	for _, c := range in {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		out = append(out, Caption{At: c.At, Text: text})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })

	deduped := out[:0]
	seen := make(map[Caption]bool, len(out))
	for _, c := range out {
		if seen[c] {
			continue
		}
		seen[c] = true
		deduped = append(deduped, c)
	}

	return deduped
}

// CaptionTrack is one language's set of captions for a video, plus
// whatever download error (if any) was encountered fetching it.
//
// ErrMessage, not Err, is the persisted record of a failed download:
// a track round-trips through the Video Cache's JSON storage, and an
// error value cannot survive that trip, so only its text is kept.
type CaptionTrack struct {
	LanguageName string
	SourceURL    string
	Captions     []Caption
	ErrMessage   string
}

// Err reconstructs the track's download error from ErrMessage, for
// callers that want an error rather than a string.
func (t CaptionTrack) Err() error {
	if t.ErrMessage == "" {
		return nil
	}
	return errors.New(t.ErrMessage)
}

// Downloaded reports whether this track's captions were successfully
// retrieved (as opposed to quarantined behind a download error).
func (t CaptionTrack) Downloaded() bool {
	return t.ErrMessage == "" && t.Captions != nil
}

// Video is the cached representation of a single YouTube video: its
// metadata plus, optionally, its caption tracks.
//
// Invariant: CaptionTracks == nil implies the video is never indexed.
// Invariant: Unindexed == true means the video must be re-added to its
// shard's index before its search results can be trusted (§3).
type Video struct {
	ID             VideoId
	Title          string
	Description    string
	Channel        string
	ThumbnailURL   string
	Keywords       []string
	UploadedUTC    *time.Time
	CaptionTracks  []CaptionTrack
	Unindexed      bool
}

// HasCaptions reports whether the video has any caption tracks attached,
// whether or not they downloaded successfully.
func (v Video) HasCaptions() bool { return v.CaptionTracks != nil }

// CaptionsComplete reports whether every attached track downloaded
// without error: the condition the Search Executor (§4.J step 3)
// requires before treating a video as "indexed" with trustworthy caption
// fields.
func (v Video) CaptionsComplete() bool {
	if !v.HasCaptions() {
		return true
	}
	for _, t := range v.CaptionTracks {
		if !t.Downloaded() {
			return false
		}
	}
	return true
}

// Track returns the caption track for the given language, if present.
// Language names are unique within a video (CaptionTrack invariant).
func (v Video) Track(language string) (CaptionTrack, bool) {
	for _, t := range v.CaptionTracks {
		if t.LanguageName == language {
			return t, true
		}
	}
	return CaptionTrack{}, false
}

// Languages returns the set of language names across this video's
// caption tracks, used to drive the Sharded Text Index's dynamic
// per-language fields (§4.I).
func (v Video) Languages() []string {
	langs := make([]string, 0, len(v.CaptionTracks))
	for _, t := range v.CaptionTracks {
		langs = append(langs, t.LanguageName)
	}
	return langs
}
