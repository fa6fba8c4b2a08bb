// Package promote fetches with a plain HTTP fetcher first and re-fetches in a
// headless browser only when the plain response looks script-rendered.
package promote

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
)

// Detector decides whether a plain page needs a headless re-fetch.
type Detector interface {
	ShouldPromote(page crawler.Page) bool
}

// Fetcher implements crawler.Fetcher with optional promotion.
type Fetcher struct {
	plain    crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting fetcher. headless and detector may be nil, in which
// case every request uses plain.
func New(plain, headless crawler.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if plain == nil {
		return nil, errors.New("promote: plain fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{plain: plain, headless: headless, detector: detector, logger: logger}, nil
}

// Fetch returns the plain page unless the detector asks for promotion. A
// failed headless fetch falls back to the plain page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	page, err := f.plain.Fetch(ctx, rawURL)
	if err != nil || f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(page) {
		return page, err //nolint:wrapcheck
	}
	f.logger.Debug("Promoting to headless fetch", zap.String("url", rawURL))
	rendered, herr := f.headless.Fetch(ctx, rawURL)
	if herr != nil {
		f.logger.Warn("Headless fetch failed; keeping plain page", zap.String("url", rawURL), zap.Error(herr))
		return page, nil
	}
	rendered.Duration += page.Duration
	return rendered, nil
}
