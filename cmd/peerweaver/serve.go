package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/peer-weaver/internal/config"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/registry"
	"github.com/alvmarrod/peer-weaver/internal/server"
	"github.com/alvmarrod/peer-weaver/internal/storage"
	"github.com/alvmarrod/peer-weaver/internal/version"
)

const announceDelay = 500 * time.Millisecond

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the node's HTTP server",
		Long: `Serve runs the node: the peer registry on /nodes, the health and metadata
endpoints, and the network graph on /network.dot and /network.<format>.

Environment:
  PORT         port to listen on (default 4000)
  SELF_URL     URL other peers reach this node at
  NOTIFY_URLS  comma separated peers to announce this node to on startup
  SEEDS        comma separated crawl seeds (default SELF_URL)`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logrus.Infof("peerweaver v%s starting at %s", version.Version, cfg.SelfURL)
	logrus.Infof("Configuration loaded: listen=%s, seeds=%v, refresh=%s, workers=%d",
		cfg.ListenAddr, cfg.Seeds, cfg.RefreshInterval(), cfg.ProbeWorkers)

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	collectors := metrics.NewCollectors()
	p := newPipeline(cfg, cfg.Seeds, store, collectors)

	reg := registry.New(cfg.SelfURL, p.prober, cfg.ProbeWorkers)
	reg.OnChange(collectors.SetRegistryPeers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(server.Options{
		Registry:   reg,
		Generator:  p.generator,
		Snapshots:  store,
		Collectors: collectors,
		Metadata: server.Metadata{
			Name:        cfg.Name,
			Owner:       cfg.Owner,
			Description: cfg.Description,
		},
		ProfileImage: cfg.ProfileImage,
		ImagesDir:    imagesDir(cfg),
		Format:       cfg.LayoutFormat,
		MinInterval:  cfg.RefreshInterval(),
		BaseContext:  ctx,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.Run(ctx, cfg.RegistryCheckInterval())
	}()

	if len(cfg.NotifyURLs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-time.After(announceDelay):
				registry.Announce(ctx, p.client, cfg.NotifyURLs, cfg.SelfURL)
			case <-ctx.Done():
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logrus.Infof("Received signal: %v", sig)
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
			logrus.Error(runErr)
		}
	}

	// A second signal skips the graceful path
	go func() {
		sig := <-sigChan
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		os.Exit(1)
	}()

	gracefulShutdown(cancel, httpServer, &wg, store, 10*time.Second)

	return runErr
}

// gracefulShutdown stops the node in order: cancel the base context so
// in-flight generations and gate waiters release, drain HTTP, wait for the
// background goroutines, then close the store.
func gracefulShutdown(cancel context.CancelFunc, httpServer *http.Server, wg *sync.WaitGroup, store io.Closer, timeout time.Duration) {
	logrus.Info("Initiating graceful shutdown...")
	logrus.Info("Step 1/4: Cancelling pending crawls and registry sweeper...")
	cancel()

	logrus.Info("Step 2/4: Stopping HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("HTTP server shutdown: %v", err)
	}

	logrus.Info("Step 3/4: Waiting for background goroutines...")
	bgDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(bgDone)
	}()

	select {
	case <-bgDone:
		logrus.Info("All background tasks completed")
	case <-time.After(5 * time.Second):
		logrus.Warn("Background tasks timeout (5s), continuing with shutdown")
	}

	logrus.Info("Step 4/4: Closing database connection...")
	if err := store.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}
	logrus.Info("Graceful shutdown complete. Goodbye!")
}
