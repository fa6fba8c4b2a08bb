// Package exporter drives a full catalog export: list datasets, crawl each
// one, and write the resulting document to its destinations.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/psl-catalog-crawler/internal/progress"
	"github.com/JakeFAU/psl-catalog-crawler/internal/psl"
	"github.com/JakeFAU/psl-catalog-crawler/internal/publisher"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage"
)

// IssueNoPath marks a dataset record skipped for lack of a listing path.
const IssueNoPath crawler.IssueKind = "no_path"

// DatasetLister returns the records to export.
type DatasetLister interface {
	ListDatasets(ctx context.Context) ([]psl.DatasetRecord, error)
}

// Crawler crawls one dataset listing tree.
type Crawler interface {
	CrawlObserved(ctx context.Context, rootURL string, obs crawler.Observer) crawler.Result
}

// CatalogStore persists document entries.
type CatalogStore interface {
	SaveEntries(ctx context.Context, runID string, doc catalog.Document) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Hasher digests the encoded document.
type Hasher interface {
	Digest(data []byte) string
}

// Deps wires an Exporter. Lister, Crawler, Primary.Store, Clock, IDs and
// Hasher are required; the rest are optional.
type Deps struct {
	Lister    DatasetLister
	Crawler   Crawler
	Primary   storage.Target
	Mirrors   []storage.Target
	Store     CatalogStore
	Publisher publisher.Publisher
	Topic     string
	Emitter   progress.Emitter
	Clock     Clock
	IDs       IDGenerator
	Hasher    Hasher
	Logger    *zap.Logger
}

// Options tune a single run.
type Options struct {
	Format catalog.Format
	// ListingTemplate renders a record's listing URL; empty uses the PSL default.
	ListingTemplate string
	// Datasets restricts the run to records whose display title or title is
	// listed. Empty means all.
	Datasets []string
	// Limit caps how many records are processed after filtering; 0 means no cap.
	Limit int
}

// Summary reports what a run produced.
type Summary struct {
	RunID    string
	Datasets int
	Skipped  int
	Files    int
	Issues   map[crawler.IssueKind]int
	Digest   string
	URIs     []string
	Duration time.Duration
	Document catalog.Document
}

// IssueCount returns the total number of issues across kinds.
func (s Summary) IssueCount() int {
	total := 0
	for _, n := range s.Issues {
		total += n
	}
	return total
}

// Exporter runs catalog exports.
type Exporter struct {
	deps   Deps
	logger *zap.Logger
}

// New validates deps and builds an Exporter.
func New(deps Deps) (*Exporter, error) {
	switch {
	case deps.Lister == nil:
		return nil, errors.New("exporter: dataset lister is required")
	case deps.Crawler == nil:
		return nil, errors.New("exporter: crawler is required")
	case deps.Primary.Store == nil || deps.Primary.Path == "":
		return nil, errors.New("exporter: primary output is required")
	case deps.Clock == nil || deps.IDs == nil || deps.Hasher == nil:
		return nil, errors.New("exporter: clock, id generator and hasher are required")
	}
	if deps.Primary.Name == "" {
		deps.Primary.Name = "primary"
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{deps: deps, logger: logger.Named("exporter")}, nil
}

// Run performs one export. Only a failed dataset listing, a failed encode or
// a failed primary write is returned as an error; everything else is logged
// and counted in the Summary.
func (e *Exporter) Run(ctx context.Context, opts Options) (Summary, error) {
	id, err := e.deps.IDs.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	run := &runState{
		exporter: e,
		runID:    progress.UUIDToBytes(id),
		started:  e.deps.Clock.Now(),
		summary:  Summary{RunID: id.String(), Issues: map[crawler.IssueKind]int{}},
		logger:   e.logger.With(zap.String("run_id", id.String())),
	}
	run.emit(progress.Event{Stage: progress.StageRunStart})
	run.logger.Info("Starting catalog export")

	summary, err := run.execute(ctx, opts)
	summary.Duration = e.deps.Clock.Now().Sub(run.started)
	if err != nil {
		run.emit(progress.Event{Stage: progress.StageRunError, Dur: nonNegative(summary.Duration), Note: err.Error()})
		run.logger.Error("Catalog export failed", zap.Error(err))
		return summary, err
	}
	run.emit(progress.Event{Stage: progress.StageRunDone, Files: int64(summary.Files), Dur: nonNegative(summary.Duration)})
	run.logger.Info("Catalog export finished",
		zap.Int("datasets", summary.Datasets),
		zap.Int("skipped", summary.Skipped),
		zap.Int("files", summary.Files),
		zap.Int("issues", summary.IssueCount()),
		zap.String("digest", summary.Digest),
		zap.Strings("uris", summary.URIs),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

type runState struct {
	exporter *Exporter
	runID    [16]byte
	started  time.Time
	summary  Summary
	logger   *zap.Logger
}

func (r *runState) emit(evt progress.Event) {
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.exporter.deps.Clock.Now()
	}
	r.exporter.deps.Emitter.Emit(evt)
}

func (r *runState) execute(ctx context.Context, opts Options) (Summary, error) {
	deps := r.exporter.deps
	records, err := deps.Lister.ListDatasets(ctx)
	if err != nil {
		return r.summary, fmt.Errorf("list datasets: %w", err)
	}
	records = selectRecords(records, opts.Datasets, opts.Limit)
	r.logger.Info("Selected datasets", zap.Int("count", len(records)))

	doc := catalog.Document{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return r.summary, fmt.Errorf("export interrupted: %w", err)
		}
		r.crawlDataset(ctx, rec, opts.ListingTemplate, doc)
	}
	r.summary.Document = doc
	r.summary.Datasets = len(doc)
	r.summary.Files = doc.FileCount()

	var buf bytes.Buffer
	if err := doc.Encode(&buf, opts.Format); err != nil {
		return r.summary, err
	}
	data := buf.Bytes()
	r.summary.Digest = deps.Hasher.Digest(data)
	contentType := opts.Format.ContentType()

	uris, err := storage.WriteAll(ctx, []storage.Target{deps.Primary}, contentType, data)
	if err != nil {
		return r.summary, fmt.Errorf("write catalog: %w", err)
	}
	r.summary.URIs = uris

	if len(deps.Mirrors) > 0 {
		mirrored, err := storage.WriteAll(ctx, deps.Mirrors, contentType, data)
		r.summary.URIs = append(r.summary.URIs, mirrored...)
		if err != nil {
			r.logger.Warn("Catalog mirror write failed", zap.Error(err))
		}
	}
	if deps.Store != nil {
		if err := deps.Store.SaveEntries(ctx, r.summary.RunID, doc); err != nil {
			r.logger.Warn("Saving catalog entries failed", zap.Error(err))
		}
	}
	if deps.Publisher != nil && deps.Topic != "" {
		r.publish(ctx)
	}
	return r.summary, nil
}

func (r *runState) crawlDataset(ctx context.Context, rec psl.DatasetRecord, template string, doc catalog.Document) {
	deps := r.exporter.deps
	title := rec.DisplayTitle()
	log := r.logger.With(zap.String("dataset", title))

	listingURL, err := rec.ListingURL(template)
	if err != nil {
		r.summary.Skipped++
		r.summary.Issues[IssueNoPath]++
		r.emit(progress.Event{Stage: progress.StageDatasetSkipped, Dataset: nonEmpty(title), Kind: string(IssueNoPath)})
		log.Warn("Skipping dataset", zap.String("kind", string(IssueNoPath)), zap.Error(err))
		return
	}

	start := deps.Clock.Now()
	r.emit(progress.Event{Stage: progress.StageDatasetStart, Dataset: nonEmpty(title), URL: listingURL})
	log.Info("Crawling dataset", zap.String("url", listingURL))

	obs := &progress.CrawlObserver{
		Emitter: deps.Emitter,
		RunID:   r.runID,
		Dataset: nonEmpty(title),
		Now:     deps.Clock.Now,
	}
	res := deps.Crawler.CrawlObserved(ctx, listingURL, obs)
	for _, issue := range res.Issues {
		r.summary.Issues[issue.Kind]++
	}

	if _, dup := doc[title]; dup {
		log.Warn("Duplicate dataset title; replacing earlier entry")
	}
	doc[title] = catalog.CatalogEntry{
		Title:       title,
		Description: rec.Description(),
		Public:      bool(rec.Public),
		BaseURL:     listingURL,
		Contents:    res.Root,
	}

	files := res.Root.FileCount()
	dur := nonNegative(deps.Clock.Now().Sub(start))
	r.emit(progress.Event{
		Stage:   progress.StageDatasetDone,
		Dataset: nonEmpty(title),
		URL:     listingURL,
		Files:   int64(files),
		Dur:     dur,
	})
	log.Info("Crawled dataset",
		zap.Int("files", files),
		zap.Int("issues", len(res.Issues)),
		zap.Int("visited", res.Visited),
		zap.Duration("duration", dur),
	)
}

func (r *runState) publish(ctx context.Context) {
	deps := r.exporter.deps
	notice := publisher.ExportNotice{
		RunID:       r.summary.RunID,
		Datasets:    r.summary.Datasets,
		Files:       r.summary.Files,
		Digest:      r.summary.Digest,
		URIs:        append([]string(nil), r.summary.URIs...),
		GeneratedAt: deps.Clock.Now().UTC(),
	}
	id, err := deps.Publisher.Publish(ctx, deps.Topic, notice)
	if err != nil {
		r.logger.Warn("Publishing export notice failed", zap.String("topic", deps.Topic), zap.Error(err))
		return
	}
	r.logger.Info("Published export notice", zap.String("topic", deps.Topic), zap.String("message_id", id))
}

// selectRecords applies the title filter, then the limit.
func selectRecords(records []psl.DatasetRecord, titles []string, limit int) []psl.DatasetRecord {
	if len(titles) > 0 {
		want := make(map[string]struct{}, len(titles))
		for _, t := range titles {
			want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
		filtered := make([]psl.DatasetRecord, 0, len(titles))
		for _, rec := range records {
			_, byDisplay := want[strings.ToLower(rec.DisplayTitle())]
			_, byTitle := want[strings.ToLower(strings.TrimSpace(rec.Title))]
			if byDisplay || byTitle {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// nonEmpty keeps untitled records valid as progress events.
func nonEmpty(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
