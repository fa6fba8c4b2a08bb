package crawler

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resolver strategy names accepted by Config.Resolver.
const (
	ResolverRelative = "relative"
	ResolverOpenDAP  = "opendap"
)

// Config captures every knob that influences one crawl.
type Config struct {
	// MaxDepth is the inclusive traversal ceiling.
	MaxDepth       int
	RequestTimeout time.Duration
	// FileSuffixes identify data-file links (matched case-insensitively).
	FileSuffixes []string
	// DirectorySuffixes identify sub-directory links, e.g. "/" or
	// "/catalog.html" for THREDDS catalogs.
	DirectorySuffixes []string
	// SkipHrefs lists anchors that are never followed (parent links).
	SkipHrefs      []string
	Resolver       string
	OpenDAPBaseURL string
	DatasetParam   string
	// FetchMetadata fetches each file's own page and drops the file if the
	// page has no property table.
	FetchMetadata bool
}

// DefaultConfig mirrors the defaults used for the PSL gridded catalog.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          3,
		RequestTimeout:    10 * time.Second,
		FileSuffixes:      []string{".nc"},
		DirectorySuffixes: []string{"/"},
		SkipHrefs:         []string{"../", "/", "/Datasets/"},
		Resolver:          ResolverOpenDAP,
		OpenDAPBaseURL:    "https://psl.noaa.gov/thredds/dodsC/",
		DatasetParam:      "dataset",
		FetchMetadata:     true,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if len(normalizeSuffixes(c.FileSuffixes)) == 0 {
		return fmt.Errorf("crawler.file_suffixes must not be empty")
	}
	if len(normalizeSuffixes(c.DirectorySuffixes)) == 0 {
		return fmt.Errorf("crawler.directory_suffixes must not be empty")
	}
	switch c.Resolver {
	case ResolverRelative:
	case ResolverOpenDAP:
		if strings.TrimSpace(c.OpenDAPBaseURL) == "" {
			return fmt.Errorf("crawler.opendap_base_url must be set for the opendap resolver")
		}
	default:
		return fmt.Errorf("crawler.resolver must be %q or %q, got %q", ResolverRelative, ResolverOpenDAP, c.Resolver)
	}
	return nil
}

// normalizeSuffixes trims, lowercases and dedupes suffixes, longest first so
// that "/catalog.html" wins over "/".
func normalizeSuffixes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
