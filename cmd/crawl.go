package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/psl-catalog-crawler/internal/config"
	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/psl-catalog-crawler/internal/exporter"
	collyfetcher "github.com/JakeFAU/psl-catalog-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/psl-catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/psl-catalog-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/psl-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/psl-catalog-crawler/internal/headless/detector"
	"github.com/JakeFAU/psl-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/psl-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/psl-catalog-crawler/internal/progress"
	"github.com/JakeFAU/psl-catalog-crawler/internal/progress/sinks"
	"github.com/JakeFAU/psl-catalog-crawler/internal/psl"
	pubsubpublisher "github.com/JakeFAU/psl-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/psl-catalog-crawler/internal/storage/postgres"
)

type crawlFlags struct {
	maxDepth int
	output   string
	limit    int
	datasets []string
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one export.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every PSL dataset and writes the catalog document",
		Long: `Fetches the PSL dataset list, walks each dataset's directory listing
depth-first and writes the resulting catalog to output.path. Mirrors to GCS,
rows in Postgres and a Pub/Sub notice are written when configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if cmd.Flags().Changed("max-depth") {
				cfg.Crawler.MaxDepth = flags.maxDepth
			}
			if flags.output != "" {
				cfg.Output.Path = flags.output
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cfg, flags, e.logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "override crawler.max_depth")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "override output.path")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "process at most this many datasets (0 = all)")
	cmd.Flags().StringSliceVar(&flags.datasets, "dataset", nil, "only crawl datasets with these titles (repeatable)")
	return cmd
}

func runCrawl(ctx context.Context, cfg config.Config, flags crawlFlags, logger *zap.Logger, out io.Writer) error {
	format, err := cfg.OutputFormat()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("Closing progress hub failed", zap.Error(err))
		}
		writeTextfile(cfg.Metrics.Textfile, registry, logger)
	}()

	fetcher, closeFetcher := buildFetcher(cfg, logger)
	defer closeFetcher()

	pacing, err := ratelimit.ParseMode(cfg.Crawler.Pacing)
	if err != nil {
		return fmt.Errorf("crawler.pacing: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		Mode:  pacing,
		Delay: cfg.Crawler.Delay,
		OnDelay: func(host string, waited time.Duration) {
			logger.Debug("Paced request", zap.String("host", host), zap.Duration("waited", waited))
		},
	})
	crawl, err := crawler.New(cfg.CrawlConfig(), fetcher, limiter, nil, nil, logger.Named("crawler"))
	if err != nil {
		return fmt.Errorf("init crawler: %w", err)
	}

	listingFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Listing.Timeout,
	})
	lister, err := psl.NewClient(cfg.Listing.APIURL, listingFetcher, logger)
	if err != nil {
		return fmt.Errorf("init dataset client: %w", err)
	}

	primaryStore, err := local.New(local.Config{BaseDir: filepath.Dir(cfg.Output.Path)})
	if err != nil {
		return fmt.Errorf("init output store: %w", err)
	}

	deps := exporter.Deps{
		Lister:  lister,
		Crawler: crawl,
		Primary: storage.Target{Name: "local", Store: primaryStore, Path: filepath.Base(cfg.Output.Path)},
		Emitter: hub,
		Clock:   system.New(),
		IDs:     uuid.New(),
		Hasher:  sha256.New(),
		Logger:  logger,
	}

	if cfg.Output.GCSBucket != "" {
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		defer func() { _ = client.Close() }()
		mirror, err := gcs.New(client, gcs.Config{Bucket: cfg.Output.GCSBucket, CacheControl: "no-cache"})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		deps.Mirrors = append(deps.Mirrors, storage.Target{Name: "gcs", Store: mirror, Path: cfg.Output.GCSObject})
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewCatalogStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init catalog store: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure catalog schema: %w", err)
		}
		deps.Store = store
	}

	if cfg.PubSub.ProjectID != "" {
		pub, client, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		defer func() {
			pub.Close()
			_ = client.Close()
		}()
		deps.Publisher = pub
		deps.Topic = cfg.PubSub.TopicName
	}

	exp, err := exporter.New(deps)
	if err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}
	summary, err := exp.Run(ctx, exporter.Options{
		Format:          format,
		ListingTemplate: cfg.Listing.CatalogURLTemplate,
		Datasets:        flags.datasets,
		Limit:           flags.limit,
	})
	if err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}
	printSummary(out, summary)
	return nil
}

// buildFetcher returns the listing fetcher and a cleanup func. A headless
// fetcher that fails to start falls back to plain HTTP.
func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func()) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.RequestTimeout,
	})
	if !cfg.Headless.Enabled {
		return plain, func() {}
	}
	hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Headless.NavTimeout,
		WaitSelector:      cfg.Headless.WaitSelector,
		Settle:            cfg.Headless.Settle,
	})
	if err != nil {
		logger.Warn("Headless fetcher init failed; using plain HTTP", zap.Error(err))
		return plain, func() {}
	}
	if cfg.Headless.Mode == config.HeadlessAlways {
		return hf, hf.Close
	}
	pf, err := promote.New(plain, hf, detector.NewHeuristic(cfg.Headless.PromotionThreshold), logger.Named("promote"))
	if err != nil {
		hf.Close()
		logger.Warn("Promoting fetcher init failed; using plain HTTP", zap.Error(err))
		return plain, func() {}
	}
	return pf, hf.Close
}

func writeTextfile(path string, registry *prometheus.Registry, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		logger.Warn("Writing metrics textfile failed", zap.String("path", path), zap.Error(err))
	}
}

func printSummary(out io.Writer, s exporter.Summary) {
	fmt.Fprintf(out, "run %s: %d datasets (%d skipped), %d files in %s\n",
		s.RunID, s.Datasets, s.Skipped, s.Files, s.Duration.Round(time.Millisecond))
	for _, uri := range s.URIs {
		fmt.Fprintf(out, "  wrote %s\n", uri)
	}
	fmt.Fprintf(out, "  digest %s\n", s.Digest)
	if s.IssueCount() == 0 {
		return
	}
	kinds := make([]string, 0, len(s.Issues))
	for kind := range s.Issues {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	fmt.Fprintf(out, "  %d issues:\n", s.IssueCount())
	for _, kind := range kinds {
		fmt.Fprintf(out, "    %-20s %d\n", kind, s.Issues[crawler.IssueKind(kind)])
	}
}
