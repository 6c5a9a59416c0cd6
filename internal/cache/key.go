package cache

import "strings"

// Key is the composite cache key: a namespace plus the location dimensions
// (and any extra request detail) the fetch was parameterized by.
type Key struct {
	Namespace  string
	University string
	City       string
	Extra      string
}

// String renders "cache:<namespace>|u=<university>|c=<city>|x=<extra>".
// Dimensions are trimmed and lower-cased so "MIT " and "mit" share entries.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString("cache:")
	b.WriteString(norm(k.Namespace))
	b.WriteString("|u=")
	b.WriteString(norm(k.University))
	b.WriteString("|c=")
	b.WriteString(norm(k.City))
	if k.Extra != "" {
		b.WriteString("|x=")
		b.WriteString(norm(k.Extra))
	}
	return b.String()
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
