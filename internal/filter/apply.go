package filter

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/abelbrown/marketfeed/internal/model"
)

// DefaultIndexThreshold is the collection size above which Apply evaluates
// predicates through the index instead of scanning.
const DefaultIndexThreshold = 50

// Executor applies a FilterSpec and SortSpec to a collection.
type Executor struct {
	IndexThreshold int
}

// Apply filters then sorts items. ix is optional; it is consulted only
// when len(items) exceeds the index threshold. The input is never mutated.
func (e Executor) Apply(items []model.Item, f model.FilterSpec, s model.SortSpec, ix *Index) []model.Item {
	threshold := e.IndexThreshold
	if threshold <= 0 {
		threshold = DefaultIndexThreshold
	}

	var filtered []model.Item
	if ix != nil && len(items) > threshold {
		filtered = ByIndex(items, f, ix)
	} else {
		filtered = Scan(items, f)
	}
	return Sort(filtered, s)
}

// Apply filters and sorts with a linear scan.
func Apply(items []model.Item, f model.FilterSpec, s model.SortSpec) []model.Item {
	return Sort(Scan(items, f), s)
}

// Scan keeps items passing every active predicate.
func Scan(items []model.Item, f model.FilterSpec) []model.Item {
	result := make([]model.Item, 0, len(items))
	if f.Empty() {
		return append(result, items...)
	}

	conds := toSet(f.Conditions())
	types := toSet(f.SellingTypes())
	freeOnly := f.FreeOnly()

	for _, item := range items {
		if len(conds) > 0 {
			if _, ok := conds[item.ConditionTag()]; !ok {
				continue
			}
		}
		if len(types) > 0 {
			if _, ok := types[item.SellingTag()]; !ok {
				continue
			}
		}
		if freeOnly && !item.IsFree() {
			continue
		}
		result = append(result, item)
	}
	return result
}

// ByIndex keeps items whose IDs the index matches, preserving input order.
func ByIndex(items []model.Item, f model.FilterSpec, ix *Index) []model.Item {
	ids, all := ix.Match(f)
	result := make([]model.Item, 0, len(items))
	if all {
		return append(result, items...)
	}
	for _, item := range items {
		if _, ok := ids[item.ID]; ok {
			result = append(result, item)
		}
	}
	return result
}

// Sort returns a stably sorted copy. SortDefault keeps the input order.
func Sort(items []model.Item, s model.SortSpec) []model.Item {
	result := make([]model.Item, len(items))
	copy(result, items)

	switch s {
	case model.SortPriceAsc, model.SortPriceDesc:
		sortByPrice(result, s == model.SortPriceDesc)
	case model.SortNewest:
		slices.SortStableFunc(result, func(a, b model.Item) int {
			switch {
			case a.PostedAt == nil && b.PostedAt == nil:
				return 0
			case a.PostedAt == nil:
				return 1
			case b.PostedAt == nil:
				return -1
			}
			return b.PostedAt.Compare(*a.PostedAt)
		})
	case model.SortPopularity:
		slices.SortStableFunc(result, func(a, b model.Item) int {
			return cmp.Compare(a.ID, b.ID)
		})
	}
	return result
}

// sortByPrice parses each price once. Unparsable prices sort last in
// both directions.
func sortByPrice(items []model.Item, desc bool) {
	type keyed struct {
		item  model.Item
		price decimal.Decimal
		ok    bool
	}
	ks := make([]keyed, len(items))
	for i, item := range items {
		p, ok := item.ParsedPrice()
		ks[i] = keyed{item: item, price: p, ok: ok}
	}

	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case !a.ok && !b.ok:
			return 0
		case !a.ok:
			return 1
		case !b.ok:
			return -1
		}
		if desc {
			return b.price.Cmp(a.price)
		}
		return a.price.Cmp(b.price)
	})

	for i := range ks {
		items[i] = ks[i].item
	}
}

func toSet[T comparable](vals []T) map[T]struct{} {
	if len(vals) == 0 {
		return nil
	}
	m := make(map[T]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}
