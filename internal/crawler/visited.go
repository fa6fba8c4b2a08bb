package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// VisitedSet records the normalized URLs crawled in one top-level traversal.
// It is owned by the caller of Crawl and handed by pointer to every recursive
// step; it is not safe for concurrent use.
type VisitedSet struct {
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Contains reports whether rawURL was already visited.
func (v *VisitedSet) Contains(rawURL string) bool {
	_, ok := v.seen[visitKey(rawURL)]
	return ok
}

// Add marks rawURL visited and reports whether it was new.
func (v *VisitedSet) Add(rawURL string) bool {
	key := visitKey(rawURL)
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct URLs visited.
func (v *VisitedSet) Len() int {
	return len(v.seen)
}

func visitKey(rawURL string) string {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return rawURL
	}
	return normalized
}

// NormalizeURL standardizes a URL so that trivially different spellings of
// the same listing share one visited entry: scheme and host are lowercased,
// default ports and fragments dropped, and query parameters sorted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}
