package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-classifier/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Anonymize and categorize a crawl artifact",
	Long:  "Reads the crawl artifact, pseudonymizes the configured field, asks the model for each title's categories and writes the classified artifact.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("input") {
			cfg.Pipeline.CrawlPath, _ = cmd.Flags().GetString("input")
		}
		if cmd.Flags().Changed("output") {
			cfg.Pipeline.ClassifiedPath, _ = cmd.Flags().GetString("output")
		}
		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		comps, err := buildPipeline(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer comps.Close()

		n, err := comps.pipeline.Classify(ctx, cfg.Pipeline.CrawlPath, cfg.Pipeline.ClassifiedPath)
		if err != nil {
			return err
		}
		zap.L().Info("classify: artifact written",
			zap.String("path", cfg.Pipeline.ClassifiedPath),
			zap.Int("records", n),
		)
		return nil
	},
}

var classifyTextCmd = &cobra.Command{
	Use:   "text <title>",
	Short: "Categorize a single title and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("classify"); err != nil {
			return err
		}
		completer, err := newCompleter(cfg)
		if err != nil {
			return err
		}
		category, err := classify.New(completer).Classify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, category)
		return nil
	},
}

func init() {
	classifyCmd.Flags().String("input", "", "crawl artifact path (default pipeline.crawl_path)")
	classifyCmd.Flags().String("output", "", "classified artifact path (default pipeline.classified_path)")
	classifyCmd.AddCommand(classifyTextCmd)
	rootCmd.AddCommand(classifyCmd)
}
