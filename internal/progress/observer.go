package progress

import (
	"errors"
	"time"

	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
)

// CrawlObserver turns crawler callbacks into Events for one dataset.
type CrawlObserver struct {
	Emitter Emitter
	RunID   [16]byte
	Dataset string
	// Now defaults to time.Now.
	Now func() time.Time
}

var _ crawler.Observer = (*CrawlObserver)(nil)

func (o *CrawlObserver) base(stage Stage, rawURL string, depth int) Event {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return Event{
		RunID:   o.RunID,
		TS:      now().UTC(),
		Stage:   stage,
		Dataset: o.Dataset,
		URL:     rawURL,
		Depth:   depth,
	}
}

func (o *CrawlObserver) emit(evt Event) {
	if o == nil || o.Emitter == nil {
		return
	}
	o.Emitter.Emit(evt)
}

// FetchDone implements crawler.Observer.
func (o *CrawlObserver) FetchDone(rawURL string, depth int, page crawler.Page, err error) {
	if o == nil {
		return
	}
	evt := o.base(StageFetchDone, rawURL, depth)
	evt.Bytes = int64(page.ContentLength())
	evt.Dur = page.Duration
	code := page.StatusCode
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		code = statusErr.StatusCode
	} else if err != nil {
		code = 0
		evt.Note = err.Error()
	}
	evt.StatusClass = ClassifyStatus(code)
	o.emit(evt)
}

// FileFound implements crawler.Observer.
func (o *CrawlObserver) FileFound(_ string, depth int, entry string) {
	if o == nil {
		return
	}
	evt := o.base(StageFileFound, entry, depth)
	evt.Files = 1
	o.emit(evt)
}

// IssueFound implements crawler.Observer.
func (o *CrawlObserver) IssueFound(issue crawler.Issue) {
	if o == nil {
		return
	}
	evt := o.base(StageIssue, issue.URL, issue.Depth)
	evt.Kind = string(issue.Kind)
	if issue.Err != nil {
		evt.Note = issue.Err.Error()
	}
	o.emit(evt)
}
