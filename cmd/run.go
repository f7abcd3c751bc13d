package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage whose output artifact is not yet complete",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyPathFlags(cmd)
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		comps, err := buildPipeline(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer comps.Close()

		run, err := comps.pipeline.Run(ctx, cfg.Pipeline.CrawlPath, cfg.Pipeline.ClassifiedPath)
		if run != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(run)
		}
		return err
	},
}

// applyPathFlags lets --crawl-output and --classified-output override the
// configured artifact paths.
func applyPathFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("crawl-output") {
		cfg.Pipeline.CrawlPath, _ = cmd.Flags().GetString("crawl-output")
	}
	if cmd.Flags().Changed("classified-output") {
		cfg.Pipeline.ClassifiedPath, _ = cmd.Flags().GetString("classified-output")
	}
}

func init() {
	runCmd.Flags().String("crawl-output", "", "crawl artifact path (default pipeline.crawl_path)")
	runCmd.Flags().String("classified-output", "", "classified artifact path (default pipeline.classified_path)")
	rootCmd.AddCommand(runCmd)
}
