package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/peer-weaver/internal/config"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/storage"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the mesh once and render the network graph",
		Long: `Crawl walks the mesh from the given seeds, probes every discovered peer once
and writes network.dot and network.<format> into the output directory.

Examples:
  # Crawl from the configured seeds
  peerweaver crawl

  # Crawl from explicit seeds
  peerweaver crawl --seed https://a.example --seed https://b.example`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringSliceP("seed", "s", nil, "Seed peer URL (repeatable); defaults to the configured seeds")
	cmd.Flags().StringP("output", "o", "", "Output directory; overrides output_dir")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	seeds, _ := cmd.Flags().GetStringSlice("seed")
	if len(seeds) == 0 {
		seeds = cfg.Seeds
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.OutputDir = out
	}

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPipeline(cfg, seeds, store, metrics.NewCollectors())
	art, err := p.generator.Generate(ctx)
	if err != nil {
		return err
	}

	if len(art.Unhealthy) > 0 {
		logrus.Warnf("Unreachable peers: %v", art.Unhealthy)
	}
	fmt.Fprintln(cmd.OutOrStdout(), art.DocPath)
	return nil
}
