// Package match implements the padded-match algebra used to locate and
// render search hits within a larger body of text: included matches,
// context padding, group splitting and overlap merging.
package match

import "sort"

// Included is a single match location relative to the start of the
// interval (or text) that contains it.
type Included struct {
	Start  int
	Length int
}

// End returns the exclusive end offset of the included match.
func (i Included) End() int {
	return i.Start + i.Length
}

// MatchedText is a piece of text plus the ordered, distinct locations of
// matches within it. Matches are always kept sorted by Start.
type MatchedText struct {
	Text    string
	Matches []Included
}

// NewMatchedText sorts and de-duplicates the given matches before
// attaching them to text.
func NewMatchedText(text string, matches []Included) MatchedText {
	mt := MatchedText{Text: text, Matches: dedupeSorted(matches)}
	return mt
}

func dedupeSorted(in []Included) []Included {
	out := make([]Included, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Length < out[j].Length
	})

	deduped := out[:0]
	for i, m := range out {
		if i > 0 && m == out[i-1] {
			continue
		}
		deduped = append(deduped, m)
	}
	return deduped
}

// Padded is a closed integer interval [Start,End] into a containing text,
// plus the included matches relative to the interval.
type Padded struct {
	Start   int
	End     int
	Matches []Included
}

// clamp restricts a padded interval to the bounds of a text of the given
// length, per the "padded interval clamps to [0, len-1]" invariant.
func clamp(start, end, textLen int) (int, int) {
	if textLen <= 0 {
		return 0, -1
	}
	if start < 0 {
		start = 0
	}
	if end > textLen-1 {
		end = textLen - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

// Pad builds a padded interval around a single included match within a
// text of the given length, extending `padding` characters either side.
func Pad(m Included, padding, textLen int) Padded {
	start, end := clamp(m.Start-padding, m.End()-1+padding, textLen)
	return Padded{
		Start: start,
		End:   end,
		Matches: []Included{{
			Start:  m.Start - start,
			Length: m.Length,
		}},
	}
}

// GroupSplit splits a MatchedText into groups by padding: two adjacent
// matches belong to the same output group iff
// next.Start <= prev.End + padding. Each group becomes a MatchedText over
// the original text, with starts kept absolute.
//
// Testable property: concatenating the returned groups' Matches yields
// exactly the original set of matches (§8.6).
func GroupSplit(mt MatchedText, padding int) []MatchedText {
	if len(mt.Matches) == 0 {
		return nil
	}

	groups := make([]MatchedText, 0, 1)
	cur := []Included{mt.Matches[0]}

	for i := 1; i < len(mt.Matches); i++ {
		prev := cur[len(cur)-1]
		next := mt.Matches[i]
		if next.Start <= prev.End()+padding {
			cur = append(cur, next)
			continue
		}
		groups = append(groups, MatchedText{Text: mt.Text, Matches: cur})
		cur = []Included{next}
	}
	groups = append(groups, MatchedText{Text: mt.Text, Matches: cur})

	return groups
}

// overlaps reports whether two closed intervals touch or overlap.
func overlaps(a, b Padded) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// Merge merges a set of padded matches over a single common text: adjacent
// padded intervals whose closed ranges touch or overlap are merged into
// one, and included matches are re-indexed relative to the merged
// interval.
//
// Merge is idempotent and commutative (§8.5): re-merging merged output
// returns the same set, and the input order does not affect the result.
func Merge(padded []Padded) []Padded {
	if len(padded) == 0 {
		return nil
	}

	sorted := make([]Padded, len(padded))
	copy(sorted, padded)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := make([]Padded, 0, len(sorted))
	cur := sorted[0]

	for i := 1; i < len(sorted); i++ {
		next := sorted[i]
		if !overlaps(cur, next) {
			out = append(out, cur)
			cur = next
			continue
		}

		merged := Padded{Start: cur.Start, End: cur.End}
		if next.End > merged.End {
			merged.End = next.End
		}

		for _, m := range cur.Matches {
			merged.Matches = append(merged.Matches, Included{
				Start:  m.Start + (cur.Start - merged.Start),
				Length: m.Length,
			})
		}
		for _, m := range next.Matches {
			merged.Matches = append(merged.Matches, Included{
				Start:  m.Start + (next.Start - merged.Start),
				Length: m.Length,
			})
		}
		merged.Matches = dedupeSorted(merged.Matches)
		cur = merged
	}
	out = append(out, cur)

	return out
}

// Slice returns the substring of text covered by the padded interval.
func (p Padded) Slice(text string) string {
	if p.End < p.Start || p.Start < 0 || p.End >= len(text) {
		if p.Start >= 0 && p.Start <= len(text) {
			end := p.End + 1
			if end > len(text) {
				end = len(text)
			}
			if end < p.Start {
				end = p.Start
			}
			return text[p.Start:end]
		}
		return ""
	}
	return text[p.Start : p.End+1]
}

// ToMatchedText renders a padded interval as a MatchedText over its own
// slice of the containing text.
func (p Padded) ToMatchedText(text string) MatchedText {
	return MatchedText{Text: p.Slice(text), Matches: dedupeSorted(p.Matches)}
}

// TimedMatch is a MatchedText that also carries a playback offset, used
// for caption-track matches: the text is the concatenation of whichever
// captions cover the match, and At is the first such caption's start
// time (§4.J step 3's caption-specific match algorithm).
type TimedMatch struct {
	MatchedText
	At int
}
