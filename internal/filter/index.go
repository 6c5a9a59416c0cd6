// Package filter provides the inverted filter index and the pure
// filter-and-sort executor. All functions are []Item in, []Item out.
package filter

import "github.com/abelbrown/marketfeed/internal/model"

// PriceBucket partitions items by price.
type PriceBucket string

const (
	PriceFree PriceBucket = "free"
	PricePaid PriceBucket = "paid" // includes unparsable prices
)

// idSet is a set of item identifiers.
type idSet map[string]struct{}

// Index maps condition, selling-type and price-bucket tags to the IDs of
// the items carrying them. It is rebuilt whenever the collection's
// original items are replaced, never patched.
type Index struct {
	Conditions   map[model.Condition]idSet
	SellingTypes map[model.SellingType]idSet
	Prices       map[PriceBucket]idSet
	size         int
}

// BuildIndex indexes items in one pass.
func BuildIndex(items []model.Item) *Index {
	ix := &Index{
		Conditions:   make(map[model.Condition]idSet),
		SellingTypes: make(map[model.SellingType]idSet),
		Prices:       make(map[PriceBucket]idSet, 2),
		size:         len(items),
	}
	for _, item := range items {
		addTo(ix.Conditions, item.ConditionTag(), item.ID)
		addTo(ix.SellingTypes, item.SellingTag(), item.ID)
		bucket := PricePaid
		if item.IsFree() {
			bucket = PriceFree
		}
		addTo(ix.Prices, bucket, item.ID)
	}
	return ix
}

// Len is the number of items the index was built from.
func (ix *Index) Len() int { return ix.size }

// Match returns the IDs passing f, or nil with all=true when f constrains
// nothing. Values within a category are ORed (set union); categories are
// ANDed (set intersection).
func (ix *Index) Match(f model.FilterSpec) (ids idSet, all bool) {
	var groups []idSet

	if conds := f.Conditions(); len(conds) > 0 {
		u := make(idSet)
		for _, c := range conds {
			union(u, ix.Conditions[c])
		}
		groups = append(groups, u)
	}
	if types := f.SellingTypes(); len(types) > 0 {
		u := make(idSet)
		for _, st := range types {
			union(u, ix.SellingTypes[st])
		}
		groups = append(groups, u)
	}
	if f.FreeOnly() {
		groups = append(groups, ix.Prices[PriceFree])
	}

	if len(groups) == 0 {
		return nil, true
	}
	return intersect(groups), false
}

func addTo[K comparable](m map[K]idSet, k K, id string) {
	s, ok := m[k]
	if !ok {
		s = make(idSet)
		m[k] = s
	}
	s[id] = struct{}{}
}

func union(dst, src idSet) {
	for id := range src {
		dst[id] = struct{}{}
	}
}

// intersect walks the smallest set and probes the others.
func intersect(groups []idSet) idSet {
	smallest := 0
	for i, g := range groups {
		if len(g) < len(groups[smallest]) {
			smallest = i
		}
	}

	out := make(idSet, len(groups[smallest]))
	for id := range groups[smallest] {
		inAll := true
		for i, g := range groups {
			if i == smallest {
				continue
			}
			if _, ok := g[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[id] = struct{}{}
		}
	}
	return out
}
