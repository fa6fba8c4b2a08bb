// Package detector decides when a plainly fetched listing should be
// re-rendered in a headless browser.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold means 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether page looks like a listing that only renders
// with JavaScript. Error statuses are never promoted.
func (h *Heuristic) ShouldPromote(page crawler.Page) bool {
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return false
	}
	body := page.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if !isHTML(page) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	// Listings and file pages are tables; a script-built page ships none.
	lower := bytes.ToLower(body)
	return !bytes.Contains(lower, []byte("<table")) && bytes.Contains(lower, []byte("<script"))
}

func isHTML(page crawler.Page) bool {
	ct := strings.ToLower(page.Headers.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "html")
}

// scriptDensityHigh reports whether <script> blocks cover at least a quarter
// of body.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
