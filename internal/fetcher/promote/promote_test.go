package promote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/psl-catalog-crawler/internal/headless/detector"
)

type stubFetcher struct {
	page  crawler.Page
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (crawler.Page, error) {
	s.calls++
	p := s.page
	p.URL = rawURL
	return p, s.err
}

const scripted = `<html><head><script src="/app.js"></script></head><body><div id="app"></div></body></html>`

func TestFetch_PlainPageIsKept(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{page: crawler.Page{StatusCode: 200, Body: []byte("<table></table>")}}
	headless := &stubFetcher{}
	f, err := New(plain, headless, detector.NewHeuristic(0), nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(page.Body))
	assert.Zero(t, headless.calls)
}

func TestFetch_PromotesScriptedPage(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{page: crawler.Page{StatusCode: 200, Body: []byte(scripted), Duration: time.Second}}
	headless := &stubFetcher{page: crawler.Page{StatusCode: 200, Body: []byte("<table>rendered</table>"), Duration: 2 * time.Second}}
	f, err := New(plain, headless, detector.NewHeuristic(0), nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "<table>rendered</table>", string(page.Body))
	assert.Equal(t, 3*time.Second, page.Duration)
	assert.Equal(t, 1, headless.calls)
}

func TestFetch_HeadlessFailureFallsBack(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{page: crawler.Page{StatusCode: 200, Body: []byte(scripted)}}
	headless := &stubFetcher{err: errors.New("chrome missing")}
	f, err := New(plain, headless, detector.NewHeuristic(0), nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, scripted, string(page.Body))
}

func TestFetch_PlainErrorIsReturned(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{err: errors.New("dial tcp: refused")}
	headless := &stubFetcher{}
	f, err := New(plain, headless, detector.NewHeuristic(0), nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "https://example.com/")
	require.Error(t, err)
	assert.Zero(t, headless.calls)
}

func TestNew_RequiresPlain(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil)
	require.Error(t, err)
}
