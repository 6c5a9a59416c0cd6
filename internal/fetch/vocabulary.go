package fetch

import "github.com/abelbrown/marketfeed/internal/model"

// Vocabulary maps UI tags to backend values. Condition spellings have
// changed across backend revisions, so the table is configuration rather
// than code; tags missing from a map pass through unchanged.
type Vocabulary struct {
	Condition   map[string]string
	SellingType map[string]string
	// SortField maps a sort option to the backend field name.
	SortField map[string]string
}

// DefaultVocabulary is the mapping shipped with the default config.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Condition: map[string]string{
			string(model.ConditionBrandNew): "new",
			string(model.ConditionLikeNew):  "like-new",
			string(model.ConditionGood):     "good",
			string(model.ConditionFair):     "fair",
			string(model.ConditionPoor):     "poor",
		},
		SellingType: map[string]string{
			string(model.SellingRent): "rent",
			string(model.SellingSell): "sell",
		},
		SortField: map[string]string{
			"price":      "price",
			"newest":     "createdAt",
			"popularity": "views",
		},
	}
}

// Apply writes f and s into q in backend vocabulary.
func (v Vocabulary) Apply(q Query, f model.FilterSpec, s model.SortSpec) Query {
	q.Conditions = nil
	for _, c := range f.Conditions() {
		q.Conditions = append(q.Conditions, lookup(v.Condition, string(c)))
	}
	q.SellingTypes = nil
	for _, st := range f.SellingTypes() {
		q.SellingTypes = append(q.SellingTypes, lookup(v.SellingType, string(st)))
	}
	q.MinPrice, q.MaxPrice = "", ""
	if f.FreeOnly() {
		q.MinPrice, q.MaxPrice = "0", "0"
	}
	q.SortBy, q.SortDirection = v.Sort(s)
	return q
}

// Sort translates a SortSpec into a (sortBy, direction) pair. SortDefault
// yields empty strings so the backend applies its own order.
func (v Vocabulary) Sort(s model.SortSpec) (sortBy, direction string) {
	switch s {
	case model.SortPriceAsc:
		return lookup(v.SortField, "price"), "asc"
	case model.SortPriceDesc:
		return lookup(v.SortField, "price"), "desc"
	case model.SortNewest:
		return lookup(v.SortField, "newest"), "desc"
	case model.SortPopularity:
		return lookup(v.SortField, "popularity"), "desc"
	default:
		return "", ""
	}
}

func lookup(m map[string]string, k string) string {
	if v, ok := m[k]; ok && v != "" {
		return v
	}
	return k
}
