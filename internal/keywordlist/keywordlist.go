// Package keywordlist implements the Keyword Lister (design §4.L): it
// aggregates keyword -> videos across a scope's candidate videos.
package keywordlist

import (
	"sort"

	"github.com/ejv2/ytsearch/internal/domain"
)

// Entry is one keyword's aggregate: its text and the videos it
// appears on, ordered by video id for determinism.
type Entry struct {
	Keyword string
	Videos  []domain.VideoId
}

// Build aggregates keyword -> videos across videos, then orders
// entries by descending video count, breaking ties alphabetically by
// keyword (§4.L "ordering by count desc then keyword asc").
func Build(videos []domain.Video) []Entry {
	index := make(map[string][]domain.VideoId)
	for _, v := range videos {
		for _, kw := range v.Keywords {
			index[kw] = append(index[kw], v.ID)
		}
	}

	entries := make([]Entry, 0, len(index))
	for kw, ids := range index {
		sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
		entries = append(entries, Entry{Keyword: kw, Videos: ids})
	}

	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Videos) != len(entries[j].Videos) {
			return len(entries[i].Videos) > len(entries[j].Videos)
		}
		return entries[i].Keyword < entries[j].Keyword
	})

	return entries
}
