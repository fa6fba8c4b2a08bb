package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Page is the result returned by a Fetcher implementation.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentLength returns the body size in bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Pacer blocks until the next fetch against rawURL may start.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Observer receives crawl milestones. Implementations must not block.
type Observer interface {
	FetchDone(rawURL string, depth int, page Page, err error)
	FileFound(listingURL string, depth int, entry string)
	IssueFound(issue Issue)
}

// Sentinel errors classified into issue kinds.
var (
	ErrNoListingTable     = errors.New("listing page has no table")
	ErrNoProperties       = errors.New("file page has no property table")
	ErrUnresolvableLink   = errors.New("file link cannot be resolved to an access url")
	ErrDuplicateDirectory = errors.New("directory name already attached")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// IssueKind names the failure class of a crawl diagnostic.
type IssueKind string

// Issue kinds surfaced by the crawler.
const (
	IssueFetch              IssueKind = "fetch"
	IssueStatus             IssueKind = "status"
	IssueNoTable            IssueKind = "no_table"
	IssueParse              IssueKind = "parse"
	IssueNoProperties       IssueKind = "no_properties"
	IssueUnresolvable       IssueKind = "unresolvable"
	IssueDuplicateDirectory IssueKind = "duplicate_directory"
)

// Issue is one non-fatal problem met during a crawl. Issues never reach the
// exported document; they exist for diagnostics only.
type Issue struct {
	URL   string
	Depth int
	Kind  IssueKind
	Err   error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s (depth %d): %v", i.Kind, i.URL, i.Depth, i.Err)
}

// Unwrap exposes the underlying error to errors.Is.
func (i Issue) Unwrap() error {
	return i.Err
}

// ClassifyError maps an error to its issue kind.
func ClassifyError(err error) IssueKind {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return IssueStatus
	case errors.Is(err, ErrNoListingTable):
		return IssueNoTable
	case errors.Is(err, ErrNoProperties):
		return IssueNoProperties
	case errors.Is(err, ErrUnresolvableLink):
		return IssueUnresolvable
	case errors.Is(err, ErrDuplicateDirectory):
		return IssueDuplicateDirectory
	case errors.Is(err, errMalformedHTML):
		return IssueParse
	default:
		return IssueFetch
	}
}

type nopObserver struct{}

func (nopObserver) FetchDone(string, int, Page, error) {}
func (nopObserver) FileFound(string, int, string)      {}
func (nopObserver) IssueFound(Issue)                   {}
