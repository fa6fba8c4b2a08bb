// Package psl reads the PSL dataset-listing API that seeds a catalog export.
package psl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
)

// Defaults for the public PSL deployment.
const (
	DefaultAPIURL          = "https://psl.noaa.gov/cgi-bin/mddb2/mddb2.py?action=getDatasets&category=0"
	DefaultListingTemplate = "https://psl.noaa.gov/thredds/catalog/{path}/catalog.html"
	pathPlaceholder        = "{path}"
)

// ErrNoListingPath marks a dataset record that carries no listing path.
var ErrNoListingPath = errors.New("dataset record has no listing path")

// Flag is a boolean that accepts JSON true/false, 0/1 or "yes"/"no" style
// strings, all of which appear in the listing API's public field.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch raw {
	case "null", `""`:
		*f = false
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("public flag: unsupported value %s", raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "y", "yes", "t", "true":
		*f = true
	case "0", "n", "no", "f", "false":
		*f = false
	default:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*f = v != 0
			return nil
		}
		return fmt.Errorf("public flag: unsupported value %q", s)
	}
	return nil
}

// DatasetRecord is one entry of the listing API response.
type DatasetRecord struct {
	Title    string `json:"title"`
	AltTitle string `json:"alt_title"`
	Desc     string `json:"desc"`
	Path     string `json:"path"`
	Public   Flag   `json:"public"`
}

// DisplayTitle is the alternate title when present, else the title.
func (r DatasetRecord) DisplayTitle() string {
	if alt := strings.TrimSpace(r.AltTitle); alt != "" {
		return alt
	}
	return strings.TrimSpace(r.Title)
}

// Description returns desc with carriage-return/line-feed pairs removed.
func (r DatasetRecord) Description() string {
	return strings.TrimSpace(strings.ReplaceAll(r.Desc, "\r\n", ""))
}

// ListingURL renders the record's listing page address from template.
func (r DatasetRecord) ListingURL(template string) (string, error) {
	path := strings.Trim(strings.TrimSpace(r.Path), "/")
	if path == "" {
		return "", ErrNoListingPath
	}
	if template == "" {
		template = DefaultListingTemplate
	}
	if !strings.Contains(template, pathPlaceholder) {
		return strings.TrimRight(template, "/") + "/" + path + "/catalog.html", nil
	}
	return strings.ReplaceAll(template, pathPlaceholder, path), nil
}

// Client fetches and decodes the listing API.
type Client struct {
	apiURL  string
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewClient builds a Client. An empty apiURL selects DefaultAPIURL.
func NewClient(apiURL string, fetcher crawler.Fetcher, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("psl: fetcher is required")
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{apiURL: apiURL, fetcher: fetcher, logger: logger.Named("psl")}, nil
}

// ListDatasets returns every record the API reports, in response order.
func (c *Client) ListDatasets(ctx context.Context) ([]DatasetRecord, error) {
	page, err := c.fetcher.Fetch(ctx, c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset listing: %w", err)
	}
	if page.StatusCode != 0 && (page.StatusCode < 200 || page.StatusCode > 299) {
		return nil, fmt.Errorf("fetch dataset listing: %w", &crawler.StatusError{URL: c.apiURL, StatusCode: page.StatusCode})
	}
	var records []DatasetRecord
	if err := json.Unmarshal(page.Body, &records); err != nil {
		return nil, fmt.Errorf("decode dataset listing: %w", err)
	}
	c.logger.Info("Loaded dataset listing",
		zap.String("url", c.apiURL),
		zap.Int("records", len(records)),
		zap.Duration("duration", page.Duration),
	)
	return records, nil
}
