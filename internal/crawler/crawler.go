package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
)

// Crawler walks HTML directory listings depth-first and collects data files
// into a catalog.ListingNode tree. One Crawl call runs to completion on the
// calling goroutine; sibling directories are never fetched in parallel.
type Crawler struct {
	cfg        Config
	fetcher    Fetcher
	pacer      Pacer
	resolver   Resolver
	classifier linkClassifier
	observer   Observer
	logger     *zap.Logger
}

// Result is the outcome of one top-level crawl.
type Result struct {
	Root    *catalog.ListingNode
	Issues  []Issue
	Visited int
}

// traversal is the mutable state of one top-level crawl. It is created by
// the top-level call and passed by pointer to each recursive step.
type traversal struct {
	visited *VisitedSet
	issues  []Issue
}

// New constructs a Crawler. pacer, observer and logger may be nil.
func New(
	cfg Config,
	fetcher Fetcher,
	pacer Pacer,
	resolver Resolver,
	observer Observer,
	logger *zap.Logger,
) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("crawler: fetcher is required")
	}
	if resolver == nil {
		r, err := NewResolver(cfg)
		if err != nil {
			return nil, err
		}
		resolver = r
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		pacer:      pacer,
		resolver:   resolver,
		classifier: newLinkClassifier(cfg),
		observer:   observer,
		logger:     logger,
	}, nil
}

// MaxDepth returns the configured traversal ceiling.
func (c *Crawler) MaxDepth() int {
	return c.cfg.MaxDepth
}

// Crawl discovers files and sub-directories below rootURL with a fresh
// visited set.
func (c *Crawler) Crawl(ctx context.Context, rootURL string) Result {
	return c.CrawlWith(ctx, rootURL, NewVisitedSet(), 0)
}

// CrawlObserved is Crawl with obs receiving this crawl's callbacks instead of
// the Crawler's own observer.
func (c *Crawler) CrawlObserved(ctx context.Context, rootURL string, obs Observer) Result {
	scoped := *c
	if obs != nil {
		scoped.observer = obs
	}
	return scoped.Crawl(ctx, rootURL)
}

// CrawlWith crawls rawURL starting at depth, sharing visited with the
// caller. A URL already in visited yields an empty node.
func (c *Crawler) CrawlWith(ctx context.Context, rawURL string, visited *VisitedSet, depth int) Result {
	if visited == nil {
		visited = NewVisitedSet()
	}
	t := &traversal{visited: visited}
	root := c.crawl(ctx, t, rawURL, depth)
	return Result{Root: root, Issues: t.issues, Visited: visited.Len()}
}

func (c *Crawler) crawl(ctx context.Context, t *traversal, rawURL string, depth int) *catalog.ListingNode {
	node := catalog.NewListingNode()
	if t.visited.Contains(rawURL) || depth > c.cfg.MaxDepth {
		return node
	}
	t.visited.Add(rawURL)
	log := c.logger.With(zap.String("url", rawURL), zap.Int("depth", depth))
	log.Debug("Checking listing")

	page, err := c.fetch(ctx, rawURL, depth)
	if err != nil {
		c.record(t, log, rawURL, depth, err)
		return node
	}
	links, err := parseListing(page.Body)
	if err != nil {
		c.record(t, log, rawURL, depth, err)
		return node
	}
	base, err := listingBase(rawURL, page)
	if err != nil {
		c.record(t, log, rawURL, depth, err)
		return node
	}

	for _, l := range links {
		if c.classifier.skipped(l.Href) {
			continue
		}
		if c.classifier.isDataFile(l.Href) {
			entry, err := c.resolveFile(ctx, base, l.Href, depth)
			if err != nil {
				c.record(t, log, linkURL(base, l.Href), depth, err)
				continue
			}
			node.AddFile(entry)
			c.observer.FileFound(rawURL, depth, entry.URL)
			log.Debug("Found data file", zap.String("access_url", entry.URL))
			continue
		}
		name, isDir := c.classifier.directoryName(l.Href)
		if !isDir || depth >= c.cfg.MaxDepth {
			continue
		}
		childURL, err := resolveReference(base, l.Href)
		if err != nil {
			c.record(t, log, l.Href, depth, err)
			continue
		}
		if t.visited.Contains(childURL) {
			continue
		}
		child := c.crawl(ctx, t, childURL, depth+1)
		if !node.Attach(name, child) && !child.IsEmpty() {
			c.record(t, log, childURL, depth, fmt.Errorf("%w: %q", ErrDuplicateDirectory, name))
		}
	}
	log.Debug("Finished listing",
		zap.Int("files", len(node.Files)),
		zap.Int("directories", len(node.Directories)),
	)
	return node
}

func (c *Crawler) resolveFile(ctx context.Context, base *url.URL, href string, depth int) (catalog.FileEntry, error) {
	accessURL, err := c.resolver.Resolve(base, href)
	if err != nil {
		return catalog.FileEntry{}, err
	}
	entry := catalog.FileEntry{URL: accessURL}
	if !c.cfg.FetchMetadata {
		return entry, nil
	}
	pageURL, err := resolveReference(base, href)
	if err != nil {
		return catalog.FileEntry{}, err
	}
	// A plain index links the data file itself; there is no page to read.
	if pageURL == accessURL || c.classifier.isDataFile(stripQuery(pageURL)) {
		return entry, nil
	}
	page, err := c.fetch(ctx, pageURL, depth)
	if err != nil {
		return catalog.FileEntry{}, err
	}
	props, err := extractProperties(page.Body)
	if err != nil {
		return catalog.FileEntry{}, fmt.Errorf("%s: %w", pageURL, err)
	}
	entry.Size = props.Size
	entry.LastModified = props.LastModified
	return entry, nil
}

// fetch waits for the pacer, then performs one bounded-timeout GET.
func (c *Crawler) fetch(ctx context.Context, rawURL string, depth int) (Page, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, rawURL); err != nil {
			return Page{}, err
		}
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	page, err := c.fetcher.Fetch(fetchCtx, rawURL)
	if err == nil && page.StatusCode != 0 && (page.StatusCode < 200 || page.StatusCode > 299) {
		err = &StatusError{URL: rawURL, StatusCode: page.StatusCode}
	}
	c.observer.FetchDone(rawURL, depth, page, err)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Crawler) record(t *traversal, log *zap.Logger, rawURL string, depth int, err error) {
	issue := Issue{URL: rawURL, Depth: depth, Kind: ClassifyError(err), Err: err}
	t.issues = append(t.issues, issue)
	c.observer.IssueFound(issue)
	log.Warn("Skipping branch", zap.String("kind", string(issue.Kind)), zap.Error(err))
}

// linkURL resolves href for diagnostics, falling back to the raw href.
func linkURL(base *url.URL, href string) string {
	if resolved, err := resolveReference(base, href); err == nil {
		return resolved
	}
	return href
}

// listingBase is the URL relative hrefs on page are resolved against; a
// redirect moves it to the final URL.
func listingBase(rawURL string, page Page) (*url.URL, error) {
	target := rawURL
	if page.FinalURL != "" {
		target = page.FinalURL
	}
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	return base, nil
}
