// Package fetch is the client for the catalog/search endpoint. It encodes
// requests, translates UI tags into the backend vocabulary, throttles
// outgoing calls, and normalizes every response shape into one Response.
package fetch

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/abelbrown/marketfeed/internal/model"
)

// DefaultPageSize is the page size requested when a Query leaves Size unset.
const DefaultPageSize = 20

// Query is one request to the catalog endpoint. Filter values are already
// in backend vocabulary.
type Query struct {
	Keyword         string
	University      string
	City            string
	Conditions      []string
	SellingTypes    []string
	MinPrice        string
	MaxPrice        string
	SortBy          string
	SortDirection   string
	Page            int
	PaginationToken string
	Size            int
}

// WithLocation sets the preferred location parameter, university first.
func (q Query) WithLocation(loc model.Location) Query {
	q.University, q.City = "", ""
	switch k, v := loc.Preferred(); k {
	case "university":
		q.University = v
	case "city":
		q.City = v
	}
	return q
}

// Values encodes q as URL query parameters. Empty fields are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("keyword", q.Keyword)
	set("university", q.University)
	set("city", q.City)
	for _, c := range q.Conditions {
		v.Add("condition", c)
	}
	for _, s := range q.SellingTypes {
		v.Add("sellingType", s)
	}
	set("minPrice", q.MinPrice)
	set("maxPrice", q.MaxPrice)
	set("sortBy", q.SortBy)
	set("sortDirection", q.SortDirection)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	set("paginationToken", q.PaginationToken)

	size := q.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	v.Set("size", strconv.Itoa(size))
	return v
}

// Key renders the request without its pagination cursor, normalized so
// equivalent requests share a cache entry.
func (q Query) Key() string {
	parts := []string{
		"k=" + strings.ToLower(strings.TrimSpace(q.Keyword)),
		"u=" + strings.ToLower(strings.TrimSpace(q.University)),
		"c=" + strings.ToLower(strings.TrimSpace(q.City)),
		"cond=" + sortedJoin(q.Conditions),
		"sell=" + sortedJoin(q.SellingTypes),
		"min=" + q.MinPrice,
		"max=" + q.MaxPrice,
		"sort=" + q.SortBy + ":" + q.SortDirection,
		"size=" + strconv.Itoa(q.Size),
	}
	return strings.Join(parts, "&")
}

// PageKey is Key plus the pagination cursor.
func (q Query) PageKey() string {
	return q.Key() + "&page=" + strconv.Itoa(q.Page) + "&token=" + q.PaginationToken
}

func sortedJoin(vals []string) string {
	cp := append([]string(nil), vals...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}
