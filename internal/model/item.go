// Package model provides the catalog data types shared by every layer of the
// engine: items, filter and sort specs, locations and the error taxonomy.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition is a normalized item condition tag ("brand-new", "like-new", ...).
type Condition string

// Known condition tags as the UI presents them.
const (
	ConditionBrandNew Condition = "brand-new"
	ConditionLikeNew  Condition = "like-new"
	ConditionGood     Condition = "good"
	ConditionFair     Condition = "fair"
	ConditionPoor     Condition = "poor"
)

// SellingType is either rent or sell.
type SellingType string

const (
	SellingRent SellingType = "rent"
	SellingSell SellingType = "sell"
)

// Item is a catalog entry. Items are immutable once fetched; a refetch
// replaces an item by ID, it never mutates it.
type Item struct {
	ID          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Price       string         `json:"price"`
	Condition   string         `json:"condition,omitempty"`
	Age         string         `json:"age,omitempty"` // legacy condition field
	SellingType string         `json:"sellingType,omitempty"`
	PostedAt    *time.Time     `json:"createdAt,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// wireItem mirrors the backend shapes seen across API revisions.
type wireItem struct {
	ID          string          `json:"id"`
	MongoID     string          `json:"_id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Price       json.RawMessage `json:"price"`
	Condition   string          `json:"condition"`
	Age         string          `json:"age"`
	SellingType string          `json:"sellingType"`
	CreatedAt   *time.Time      `json:"createdAt"`
	PostedAt    *time.Time      `json:"postedAt"`
	Attributes  map[string]any  `json:"attributes"`
}

// UnmarshalJSON accepts both `id` and `_id` identifiers and numeric or
// string prices, so the rest of the engine sees one shape.
func (i *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*i = Item{
		ID:          w.ID,
		Title:       w.Title,
		Condition:   w.Condition,
		Age:         w.Age,
		SellingType: w.SellingType,
		PostedAt:    w.CreatedAt,
		Attributes:  w.Attributes,
	}
	if i.ID == "" {
		i.ID = w.MongoID
	}
	if i.Title == "" {
		i.Title = w.Name
	}
	if i.PostedAt == nil {
		i.PostedAt = w.PostedAt
	}
	i.Price = rawPrice(w.Price)
	return nil
}

// rawPrice turns a JSON string or number into the decimal string form.
func rawPrice(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// ConditionTag returns the normalized condition, preferring the canonical
// condition field over the legacy age field.
func (i Item) ConditionTag() Condition {
	c := i.Condition
	if strings.TrimSpace(c) == "" {
		c = i.Age
	}
	tag := normalizeTag(c)
	if alias, ok := conditionAliases[tag]; ok {
		return alias
	}
	return Condition(tag)
}

// conditionAliases folds backend spellings onto the UI tags.
var conditionAliases = map[string]Condition{
	"new":       ConditionBrandNew,
	"brandnew":  ConditionBrandNew,
	"likenew":   ConditionLikeNew,
	"used-good": ConditionGood,
}

// SellingTag returns the normalized selling type.
func (i Item) SellingTag() SellingType {
	return SellingType(normalizeTag(i.SellingType))
}

// ParsedPrice parses the item's price on demand.
func (i Item) ParsedPrice() (decimal.Decimal, bool) {
	return ParsePrice(i.Price)
}

// IsFree reports whether the price parses to exactly zero. Unparsable
// prices are never free.
func (i Item) IsFree() bool {
	p, ok := i.ParsedPrice()
	return ok && p.IsZero()
}

// ParsePrice parses a decimal price string, tolerating currency symbols,
// thousands separators and surrounding whitespace.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£₹¥ ")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeTag lower-cases a tag and folds spaces and underscores to dashes
// so "Like New", "like_new" and "like-new" compare equal.
func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.Join(strings.Fields(s), "-")
}

// IDs returns the identifiers of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
