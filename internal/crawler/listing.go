package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var errMalformedHTML = errors.New("malformed html")

// link is one anchor found in a listing table.
type link struct {
	Href string
	Text string
}

// parseListing returns the anchors of the first table in body, in document
// order. Anchors without an href are returned with an empty Href.
func parseListing(body []byte) ([]link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedHTML, err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoListingTable
	}
	var links []link
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		row.Find("a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			links = append(links, link{
				Href: strings.TrimSpace(href),
				Text: strings.TrimSpace(a.Text()),
			})
		})
	})
	return links, nil
}

// linkClassifier decides what an href in a listing points at.
type linkClassifier struct {
	fileSuffixes []string
	dirSuffixes  []string
	skip         map[string]struct{}
}

func newLinkClassifier(cfg Config) linkClassifier {
	skip := make(map[string]struct{}, len(cfg.SkipHrefs))
	for _, href := range cfg.SkipHrefs {
		skip[strings.TrimSpace(href)] = struct{}{}
	}
	return linkClassifier{
		fileSuffixes: normalizeSuffixes(cfg.FileSuffixes),
		dirSuffixes:  normalizeSuffixes(cfg.DirectorySuffixes),
		skip:         skip,
	}
}

func (c linkClassifier) skipped(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	_, ok := c.skip[href]
	return ok
}

// isDataFile matches the suffix against the whole href, so a THREDDS link
// such as "catalog.html?dataset=Datasets/x/air.nc" counts as a data file.
func (c linkClassifier) isDataFile(href string) bool {
	lower := strings.ToLower(stripFragment(href))
	for _, suffix := range c.fileSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// directoryName returns the name a sub-directory link is stored under, or
// false when href is not a directory link.
func (c linkClassifier) directoryName(href string) (string, bool) {
	p := stripQuery(stripFragment(href))
	lower := strings.ToLower(p)
	for _, suffix := range c.dirSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		name := strings.Trim(p[:len(p)-len(suffix)], "/")
		if name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

func stripQuery(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}

// resolveReference joins href against the listing URL.
func resolveReference(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
