package model

import (
	"sort"
	"strings"
)

// FreeTag is the filter marker that keeps only items priced at zero.
const FreeTag = "free"

// FilterSpec is the deduplicated, unordered set of selected filter tags.
// Condition tags and selling-type tags share one namespace with the free
// marker; Conditions and SellingTypes split them back out.
type FilterSpec struct {
	tags map[string]struct{}
}

// NewFilterSpec builds a filter from tags, normalizing and deduplicating them.
func NewFilterSpec(tags ...string) FilterSpec {
	f := FilterSpec{tags: make(map[string]struct{}, len(tags))}
	for _, t := range tags {
		if n := normalizeTag(t); n != "" {
			f.tags[n] = struct{}{}
		}
	}
	return f
}

// Empty reports whether no tag is selected.
func (f FilterSpec) Empty() bool { return len(f.tags) == 0 }

// Has reports whether tag is selected.
func (f FilterSpec) Has(tag string) bool {
	_, ok := f.tags[normalizeTag(tag)]
	return ok
}

// Toggle returns a copy with tag flipped.
func (f FilterSpec) Toggle(tag string) FilterSpec {
	n := normalizeTag(tag)
	out := NewFilterSpec(f.Tags()...)
	if n == "" {
		return out
	}
	if _, ok := out.tags[n]; ok {
		delete(out.tags, n)
	} else {
		out.tags[n] = struct{}{}
	}
	return out
}

// Tags returns the selected tags sorted, for stable keys and logging.
func (f FilterSpec) Tags() []string {
	out := make([]string, 0, len(f.tags))
	for t := range f.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Conditions returns the selected condition tags.
func (f FilterSpec) Conditions() []Condition {
	var out []Condition
	for _, t := range f.Tags() {
		if isSellingTag(t) || t == FreeTag {
			continue
		}
		out = append(out, Condition(t))
	}
	return out
}

// SellingTypes returns the selected selling-type tags.
func (f FilterSpec) SellingTypes() []SellingType {
	var out []SellingType
	for _, t := range f.Tags() {
		if isSellingTag(t) {
			out = append(out, SellingType(t))
		}
	}
	return out
}

// FreeOnly reports whether the free marker is selected.
func (f FilterSpec) FreeOnly() bool { return f.Has(FreeTag) }

// Key renders the active tags for cache keys.
func (f FilterSpec) Key() string { return strings.Join(f.Tags(), ",") }

func isSellingTag(t string) bool {
	return t == string(SellingRent) || t == string(SellingSell)
}

// SortSpec selects the ordering applied after filtering.
type SortSpec string

const (
	SortDefault    SortSpec = "default"
	SortPriceAsc   SortSpec = "price-ascending"
	SortPriceDesc  SortSpec = "price-descending"
	SortNewest     SortSpec = "newest"
	SortPopularity SortSpec = "popularity"
)

// ParseSort maps a user-supplied option to a SortSpec. Unknown values fall
// back to SortDefault.
func ParseSort(s string) SortSpec {
	switch normalizeTag(s) {
	case "price-ascending", "price-asc", "price-low-high":
		return SortPriceAsc
	case "price-descending", "price-desc", "price-high-low":
		return SortPriceDesc
	case "newest", "latest":
		return SortNewest
	case "popularity", "popular":
		return SortPopularity
	default:
		return SortDefault
	}
}

// Location is the screen's location context.
type Location struct {
	University string
	City       string
}

// Empty reports whether neither dimension is known.
func (l Location) Empty() bool {
	return strings.TrimSpace(l.University) == "" && strings.TrimSpace(l.City) == ""
}

// Preferred returns the parameter name and value a query should use,
// preferring the university over the city.
func (l Location) Preferred() (key, value string) {
	if u := strings.TrimSpace(l.University); u != "" {
		return "university", u
	}
	if c := strings.TrimSpace(l.City); c != "" {
		return "city", c
	}
	return "", ""
}
