package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
)

// fakeFetcher serves canned pages keyed by URL and records every request.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	errs   map[string]error
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:  map[string]string{},
		status: map[string]int{},
		errs:   map[string]error{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return Page{}, err
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return Page{URL: rawURL, StatusCode: http.StatusNotFound}, nil
	}
	code := http.StatusOK
	if c, ok := f.status[rawURL]; ok {
		code = c
	}
	return Page{URL: rawURL, FinalURL: rawURL, StatusCode: code, Body: []byte(body)}, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	fetches int
	files   []string
	issues  []Issue
}

func (o *recordingObserver) FetchDone(string, int, Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches++
}

func (o *recordingObserver) FileFound(_ string, _ int, entry string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, entry)
}

func (o *recordingObserver) IssueFound(issue Issue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issues = append(o.issues, issue)
}

func listingHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Index</h1><table>")
	b.WriteString(`<tr><th>Name</th><th>Size</th></tr>`)
	b.WriteString(`<tr><td><a href="../">Parent Directory</a></td></tr>`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<tr><td><a href="%s">%s</a></td><td>1M</td></tr>`, href, href)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func relativeConfig(maxDepth int) Config {
	cfg := DefaultConfig()
	cfg.MaxDepth = maxDepth
	cfg.Resolver = ResolverRelative
	cfg.FetchMetadata = false
	cfg.RequestTimeout = time.Second
	return cfg
}

func newTestCrawler(t *testing.T, cfg Config, f Fetcher, obs Observer) *Crawler {
	t.Helper()
	c, err := New(cfg, f, nil, nil, obs, nil)
	require.NoError(t, err)
	return c
}

// assertPruned fails if any directory entry in the tree is empty.
func assertPruned(t *testing.T, root *catalog.ListingNode) {
	t.Helper()
	root.Walk(func(path string, node *catalog.ListingNode) {
		for name, child := range node.Directories {
			assert.False(t, child.IsEmpty(), "empty directory %q under %q", name, path)
		}
	})
}

func TestCrawl_FilesAndSubdirectory(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/root/"] = listingHTML("a.nc", "b.nc", "sub/", "readme.txt")
	f.pages["https://data.test/root/sub/"] = listingHTML("c.nc")
	c := newTestCrawler(t, relativeConfig(1), f, nil)

	res := c.Crawl(context.Background(), "https://data.test/root/")

	require.Len(t, res.Root.Files, 2)
	assert.Equal(t, "https://data.test/root/a.nc", res.Root.Files[0].URL)
	assert.Equal(t, "https://data.test/root/b.nc", res.Root.Files[1].URL)
	require.Len(t, res.Root.Directories, 1)
	sub := res.Root.Directories["sub"]
	require.NotNil(t, sub)
	require.Len(t, sub.Files, 1)
	assert.Equal(t, "https://data.test/root/sub/c.nc", sub.Files[0].URL)
	assert.Empty(t, res.Issues)
	assert.Equal(t, 2, res.Visited)
}

func TestCrawl_CycleBackToRootTerminates(t *testing.T) {
	t.Parallel()

	root := "https://data.test/root/"
	f := newFakeFetcher()
	f.pages[root] = listingHTML("x.nc", "/root/", "./")
	c := newTestCrawler(t, relativeConfig(5), f, nil)

	done := make(chan Result, 1)
	go func() { done <- c.Crawl(context.Background(), root) }()
	select {
	case res := <-done:
		assert.Len(t, res.Root.Files, 1)
		assert.Empty(t, res.Root.Directories, "self link must not produce a nested copy")
		assert.Equal(t, 1, f.count(root))
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not terminate")
	}
}

func TestCrawl_MutualCycleVisitsEachURLOnce(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/a/"] = listingHTML("a.nc", "/b/")
	f.pages["https://data.test/b/"] = listingHTML("b.nc", "/a/")
	c := newTestCrawler(t, relativeConfig(5), f, nil)

	res := c.Crawl(context.Background(), "https://data.test/a/")

	assert.Equal(t, 1, f.count("https://data.test/a/"))
	assert.Equal(t, 1, f.count("https://data.test/b/"))
	require.Contains(t, res.Root.Directories, "b")
	assert.Empty(t, res.Root.Directories["b"].Directories)
	assertPruned(t, res.Root)
}

func TestCrawl_DepthBound(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("a/")
	f.pages["https://data.test/a/"] = listingHTML("one.nc", "b/")
	f.pages["https://data.test/a/b/"] = listingHTML("two.nc", "c/")
	f.pages["https://data.test/a/b/c/"] = listingHTML("three.nc")

	tests := []struct {
		maxDepth  int
		wantFiles int
		wantFetch []string
	}{
		{maxDepth: 0, wantFiles: 0, wantFetch: []string{"https://data.test/"}},
		{maxDepth: 1, wantFiles: 1, wantFetch: []string{"https://data.test/", "https://data.test/a/"}},
		{maxDepth: 3, wantFiles: 3, wantFetch: []string{
			"https://data.test/", "https://data.test/a/", "https://data.test/a/b/", "https://data.test/a/b/c/",
		}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_depth=%d", tt.maxDepth), func(t *testing.T) {
			t.Parallel()
			ff := newFakeFetcher()
			for k, v := range f.pages {
				ff.pages[k] = v
			}
			c := newTestCrawler(t, relativeConfig(tt.maxDepth), ff, nil)
			res := c.Crawl(context.Background(), "https://data.test/")
			assert.Equal(t, tt.wantFiles, res.Root.FileCount())
			assert.ElementsMatch(t, tt.wantFetch, ff.calls)
			assertPruned(t, res.Root)
		})
	}
}

func TestCrawlWith_BeyondMaxDepthIsEmptyNotError(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("a.nc")
	c := newTestCrawler(t, relativeConfig(1), f, nil)

	res := c.CrawlWith(context.Background(), "https://data.test/", NewVisitedSet(), 2)
	assert.True(t, res.Root.IsEmpty())
	assert.Empty(t, res.Issues)
	assert.Empty(t, f.calls)
}

func TestCrawlWith_SecondVisitYieldsEmptyNode(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("a.nc")
	c := newTestCrawler(t, relativeConfig(1), f, nil)
	visited := NewVisitedSet()

	first := c.CrawlWith(context.Background(), "https://data.test/", visited, 0)
	second := c.CrawlWith(context.Background(), "https://DATA.test:443/#frag", visited, 0)

	assert.Len(t, first.Root.Files, 1)
	assert.True(t, second.Root.IsEmpty())
	assert.Equal(t, 1, len(f.calls))
}

func TestCrawl_DiamondSharedDirectoryCrawledOnce(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("x/", "y/")
	f.pages["https://data.test/x/"] = listingHTML("/shared/")
	f.pages["https://data.test/y/"] = listingHTML("/shared/")
	f.pages["https://data.test/shared/"] = listingHTML("s.nc")
	c := newTestCrawler(t, relativeConfig(3), f, nil)

	res := c.Crawl(context.Background(), "https://data.test/")

	assert.Equal(t, 1, f.count("https://data.test/shared/"))
	assert.Equal(t, 1, res.Root.FileCount())
	assert.Contains(t, res.Root.Directories, "x")
	assert.NotContains(t, res.Root.Directories, "y", "branch with only an already visited link is pruned")
	assertPruned(t, res.Root)
}

func TestCrawl_FailuresAreIsolatedPerBranch(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("broken/", "missing/", "notable/", "good/", "top.nc")
	f.errs["https://data.test/broken/"] = errors.New("dial tcp: i/o timeout")
	f.pages["https://data.test/notable/"] = "<html><body><p>no listing here</p></body></html>"
	f.pages["https://data.test/good/"] = listingHTML("g.nc")
	obs := &recordingObserver{}
	c := newTestCrawler(t, relativeConfig(2), f, obs)

	res := c.Crawl(context.Background(), "https://data.test/")

	assert.Len(t, res.Root.Files, 1)
	require.Len(t, res.Root.Directories, 1)
	assert.Contains(t, res.Root.Directories, "good")
	kinds := map[string]IssueKind{}
	for _, issue := range res.Issues {
		kinds[issue.URL] = issue.Kind
	}
	assert.Equal(t, IssueFetch, kinds["https://data.test/broken/"])
	assert.Equal(t, IssueStatus, kinds["https://data.test/missing/"])
	assert.Equal(t, IssueNoTable, kinds["https://data.test/notable/"])
	assert.Len(t, obs.issues, 3)
	assert.Equal(t, 5, obs.fetches)
	assert.ElementsMatch(t, []string{"https://data.test/top.nc", "https://data.test/good/g.nc"}, obs.files)
	assertPruned(t, res.Root)
}

func TestCrawl_RootFetchFailureReturnsEmptyNode(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.errs["https://data.test/"] = context.DeadlineExceeded
	c := newTestCrawler(t, relativeConfig(3), f, nil)

	res := c.Crawl(context.Background(), "https://data.test/")
	assert.True(t, res.Root.IsEmpty())
	require.Len(t, res.Issues, 1)
	assert.ErrorIs(t, res.Issues[0], context.DeadlineExceeded)
}

func TestCrawl_OpenDAPResolutionWithMetadata(t *testing.T) {
	t.Parallel()

	listing := "https://psl.test/thredds/catalog/Datasets/air/catalog.html"
	f := newFakeFetcher()
	f.pages[listing] = listingHTML(
		"catalog.html?dataset=Datasets/air/air.2m.nc",
		"catalog.html?dataset=Datasets/air/noprops.nc",
		"orphan.nc",
	)
	f.pages["https://psl.test/thredds/catalog/Datasets/air/catalog.html?dataset=Datasets/air/air.2m.nc"] = `
<html><body>
<table class="property-table"><tr><td>Data size</td><td>12.5 Mbytes</td></tr></table>
<div id="dates"><ul><li>modified: 2024-01-02T03:04:05Z</li></ul></div>
</body></html>`
	f.pages["https://psl.test/thredds/catalog/Datasets/air/catalog.html?dataset=Datasets/air/noprops.nc"] = `<html><body><p>nothing</p></body></html>`

	cfg := DefaultConfig()
	cfg.OpenDAPBaseURL = "https://psl.test/thredds/dodsC/"
	cfg.RequestTimeout = time.Second
	pacer := &countingPacer{}
	c, err := New(cfg, f, pacer, nil, nil, nil)
	require.NoError(t, err)

	res := c.Crawl(context.Background(), listing)

	require.Len(t, res.Root.Files, 1)
	assert.Equal(t, catalog.FileEntry{
		URL:          "https://psl.test/thredds/dodsC/Datasets/air/air.2m.nc",
		Size:         "12.5 Mbytes",
		LastModified: "2024-01-02T03:04:05Z",
	}, res.Root.Files[0])

	kinds := []IssueKind{}
	for _, issue := range res.Issues {
		kinds = append(kinds, issue.Kind)
	}
	assert.ElementsMatch(t, []IssueKind{IssueNoProperties, IssueUnresolvable}, kinds)
	assert.Equal(t, len(f.calls), pacer.waits, "every fetch is preceded by a pacing wait")
}

func TestCrawl_RelativeResolverWithMetadataKeepsDirectFileLinks(t *testing.T) {
	t.Parallel()

	root := "https://data.test/air/"
	f := newFakeFetcher()
	f.pages[root] = listingHTML("air.2020.nc", "air.2021.nc")
	f.pages[root+"air.2020.nc"] = "\x89HDF\r\n binary"
	f.pages[root+"air.2021.nc"] = "\x89HDF\r\n binary"

	cfg := DefaultConfig()
	cfg.Resolver = ResolverRelative
	cfg.RequestTimeout = time.Second
	require.True(t, cfg.FetchMetadata)
	c := newTestCrawler(t, cfg, f, nil)

	res := c.Crawl(context.Background(), root)

	assert.Equal(t, []string{root + "air.2020.nc", root + "air.2021.nc"}, res.Root.FileURLs())
	assert.Empty(t, res.Issues)
	assert.Equal(t, []string{root}, f.calls, "data files themselves are never downloaded")
}

func TestCrawl_IssuesCarryResolvedURLs(t *testing.T) {
	t.Parallel()

	listing := "https://psl.test/thredds/catalog/Datasets/air/catalog.html"
	f := newFakeFetcher()
	f.pages[listing] = listingHTML("catalog.html?dataset=Datasets/air/noprops.nc", "orphan.nc", "gone/")
	f.pages["https://psl.test/thredds/catalog/Datasets/air/catalog.html?dataset=Datasets/air/noprops.nc"] = `<p>nothing</p>`

	cfg := DefaultConfig()
	cfg.OpenDAPBaseURL = "https://psl.test/thredds/dodsC/"
	cfg.RequestTimeout = time.Second
	obs := &recordingObserver{}
	c := newTestCrawler(t, cfg, f, obs)

	res := c.Crawl(context.Background(), listing)

	urls := map[IssueKind]string{}
	for _, issue := range res.Issues {
		urls[issue.Kind] = issue.URL
	}
	assert.Equal(t, map[IssueKind]string{
		IssueNoProperties: "https://psl.test/thredds/catalog/Datasets/air/catalog.html?dataset=Datasets/air/noprops.nc",
		IssueUnresolvable: "https://psl.test/thredds/catalog/Datasets/air/orphan.nc",
		IssueStatus:       "https://psl.test/thredds/catalog/Datasets/air/gone/",
	}, urls)
	assert.Len(t, obs.issues, 3)
}

func TestCrawl_THREDDSDirectorySuffix(t *testing.T) {
	t.Parallel()

	root := "https://psl.test/thredds/catalog/Datasets/catalog.html"
	f := newFakeFetcher()
	f.pages[root] = listingHTML("air/catalog.html", "/Datasets/")
	f.pages["https://psl.test/thredds/catalog/Datasets/air/catalog.html"] = listingHTML("catalog.html?dataset=Datasets/air/a.nc")

	cfg := DefaultConfig()
	cfg.FetchMetadata = false
	cfg.DirectorySuffixes = []string{"/", "/catalog.html"}
	cfg.OpenDAPBaseURL = "https://psl.test/thredds/dodsC"
	c := newTestCrawler(t, cfg, f, nil)

	res := c.Crawl(context.Background(), root)

	require.Contains(t, res.Root.Directories, "air")
	assert.Equal(t, []string{"https://psl.test/thredds/dodsC/Datasets/air/a.nc"}, res.Root.FileURLs())
	assert.NotContains(t, f.calls, "https://psl.test/Datasets/", "skip list is honored")
}

func TestCrawl_ContextCanceledStopsFetching(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://data.test/"] = listingHTML("a.nc")
	cfg := relativeConfig(1)
	slow := &blockingPacer{}
	c, err := New(cfg, f, slow, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Crawl(ctx, "https://data.test/")
	assert.True(t, res.Root.IsEmpty())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueFetch, res.Issues[0].Kind)
	assert.Empty(t, f.calls)
}

type blockingPacer struct{}

func (blockingPacer) Wait(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Resolver = "guess"
	_, err := New(cfg, newFakeFetcher(), nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
