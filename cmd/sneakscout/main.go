package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/sneakscout/internal/config"
	"github.com/amosWeiskopf/sneakscout/pkg/exporter"
	"github.com/amosWeiskopf/sneakscout/pkg/pipeline"
	"github.com/amosWeiskopf/sneakscout/pkg/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sneakscout",
	Short: "SneakScout - Sneaker Catalog Review Analyzer",
	Long: `SneakScout crawls a paginated sneaker catalog, classifies each
product's verified customer reviews by sentiment, persists the results to
SQLite and exports a spreadsheet report.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the full scrape-analyze-export pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := pipeline.New(cfg, st, log).Run(cmd.Context()); err != nil {
			log.Errorf("unexpected error: %v", err)
			return err
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export the spreadsheet report from the existing store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		e := exporter.New(cfg.Export.TopN, log)
		if err := e.Export(cmd.Context(), st, cfg.Export.Path); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Report saved to %s\n", cfg.Export.Path)
		return nil
	},
}

// setup loads configuration and builds the process-wide logger.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, log, nil
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(exportCmd)

	rootCmd.PersistentFlags().String("config", "", "Config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
