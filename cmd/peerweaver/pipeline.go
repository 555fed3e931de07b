package main

import (
	"path/filepath"

	"github.com/alvmarrod/peer-weaver/internal/config"
	"github.com/alvmarrod/peer-weaver/internal/crawler"
	"github.com/alvmarrod/peer-weaver/internal/execx"
	"github.com/alvmarrod/peer-weaver/internal/generator"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/render"
	"github.com/alvmarrod/peer-weaver/internal/storage"
)

// pipeline holds the components shared by serve and crawl
type pipeline struct {
	client    *crawler.Client
	prober    *crawler.HealthProber
	generator *generator.Generator
}

func newPipeline(cfg *config.Config, seeds []string, store *storage.Storage, collectors *metrics.Collectors) *pipeline {
	client := crawler.NewClient(cfg.RequestTimeout())
	prober := crawler.NewHealthProber(client)

	avatars := render.NewAvatars(client, imagesDir(cfg))
	renderer := render.NewRenderer(avatars, cfg.LabelSuffixes, cfg.ProbeWorkers)
	layout := render.NewGraphvizLayout(execx.NewOSRunner(), cfg.LayoutCommand, cfg.LayoutFormat)

	gen := generator.New(generator.Options{
		Crawler:     crawler.NewCrawler(client, prober, cfg.ProbeWorkers),
		Renderer:    renderer,
		Layout:      layout,
		Store:       store,
		Collectors:  collectors,
		Seeds:       seeds,
		OutputDir:   cfg.OutputDir,
		Format:      cfg.LayoutFormat,
		MetricsPath: cfg.MetricsPath,
	})

	return &pipeline{client: client, prober: prober, generator: gen}
}

func imagesDir(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, "images")
}
