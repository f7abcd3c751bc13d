package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-classifier/internal/pipeline"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the configured seeds into a new crawl artifact",
	Long:  "Always crawls, replacing any existing artifact at the output path once the crawl succeeds.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("output") {
			cfg.Pipeline.CrawlPath, _ = cmd.Flags().GetString("output")
		}
		if seeds, _ := cmd.Flags().GetStringSlice("seed"); len(seeds) > 0 {
			cfg.Crawl.Seeds = seeds
		}
		if cmd.Flags().Changed("max-pages") {
			cfg.Crawl.MaxPagesPerSeed, _ = cmd.Flags().GetInt("max-pages")
		}
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}

		p := pipeline.New(newCrawler(cfg), nil, nil, nil, pipeline.Options{
			BatchSize: cfg.Pipeline.BatchSize,
		})

		n, err := p.Crawl(ctx, cfg.Pipeline.CrawlPath)
		if err != nil {
			return err
		}
		zap.L().Info("crawl: artifact written",
			zap.String("path", cfg.Pipeline.CrawlPath),
			zap.Int("records", n),
		)
		return nil
	},
}

func init() {
	crawlCmd.Flags().String("output", "", "crawl artifact path (default pipeline.crawl_path)")
	crawlCmd.Flags().StringSlice("seed", nil, "seed URL (repeatable, replaces crawl.seeds)")
	crawlCmd.Flags().Int("max-pages", 0, "stop each seed after this many pages (0 = no cap)")
	rootCmd.AddCommand(crawlCmd)
}
