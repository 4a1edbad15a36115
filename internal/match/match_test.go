package match

import (
	"reflect"
	"sort"
	"testing"
)

func TestGroupSplitRoundTrips(t *testing.T) {
	mt := NewMatchedText("the quick brown fox jumps over the lazy dog", []Included{
		{Start: 4, Length: 5},
		{Start: 10, Length: 5},
		{Start: 35, Length: 4},
	})

	groups := GroupSplit(mt, 2)

	var all []Included
	for _, g := range groups {
		all = append(all, g.Matches...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start < all[j].Start })

	if !reflect.DeepEqual(all, mt.Matches) {
		t.Fatalf("group split did not round trip: got %v want %v", all, mt.Matches)
	}
}

func TestGroupSplitSeparatesDistantMatches(t *testing.T) {
	mt := NewMatchedText("aaaa....................bbbb", []Included{
		{Start: 0, Length: 4},
		{Start: 25, Length: 4},
	})

	groups := GroupSplit(mt, 2)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestMergeIdempotent(t *testing.T) {
	padded := []Padded{
		{Start: 0, End: 5, Matches: []Included{{Start: 0, Length: 2}}},
		{Start: 4, End: 10, Matches: []Included{{Start: 0, Length: 1}}},
	}

	once := Merge(padded)
	twice := Merge(once)

	if len(once) != 1 || once[0].Start != 0 || once[0].End != 10 {
		t.Fatalf("unexpected merge result: %+v", once)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent: %+v vs %+v", once, twice)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := []Padded{
		{Start: 0, End: 5},
		{Start: 4, End: 10},
		{Start: 20, End: 25},
	}
	b := []Padded{a[2], a[0], a[1]}

	ma := Merge(a)
	mb := Merge(b)

	if !reflect.DeepEqual(ma, mb) {
		t.Fatalf("merge is not commutative: %+v vs %+v", ma, mb)
	}
}

func TestPadClamps(t *testing.T) {
	p := Pad(Included{Start: 1, Length: 3}, 10, 5)
	if p.Start != 0 || p.End != 4 {
		t.Fatalf("expected clamp to [0,4], got [%d,%d]", p.Start, p.End)
	}
}
