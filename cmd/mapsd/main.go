package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/api"
	"interactive-maps/pkg/config"
	"interactive-maps/pkg/dfs"
	"interactive-maps/pkg/fetch"
	"interactive-maps/pkg/health"
	"interactive-maps/pkg/mapstore"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/optimize"
	"interactive-maps/pkg/pipeline"
	"interactive-maps/pkg/purge"
	"interactive-maps/pkg/queue"
	"interactive-maps/pkg/tiler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel) // Default level

	configFileFlag := flag.String("config", "config.yaml", "Path to YAML config file")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := flag.String("pprof", "", "Address for pprof HTTP server (e.g., ':6060', empty to disable)")
	flag.Parse()

	// --- Logger Configuration ---
	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
		log.Infof("Setting log level to: %s", level.String())
	}
	if level != logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Load & Validate Application Configuration ---
	log.Infof("Loading configuration from %s", *configFileFlag)
	appCfg, err := config.Load(*configFileFlag)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	log.Infof("Config: Listen: %s, TmpDir: %s, StateDir: %s, FetchWorkers: %d, TileWorkers: %d, ZoomCap: %d",
		appCfg.ListenAddr, appCfg.TmpDir, appCfg.Queue.StateDir,
		appCfg.Queue.MaxFetchJobs, appCfg.Queue.MaxTileJobs, appCfg.Tiling.MaxZoom)

	// --- Start pprof HTTP Server (Optional) ---
	if *pprofAddr != "" {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("PANIC in pprof server: %v", r)
				}
			}()
			log.Infof("Starting pprof HTTP server on: http://%s/debug/pprof/", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Errorf("Pprof server failed to start on %s: %v", *pprofAddr, err)
			}
		}()
	}

	// ===========================================================
	// == Setup Global Context & Signal Handling ==
	// ===========================================================
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ===========================================================
	// == Initialize Core Components ==
	// ===========================================================
	store, err := mapstore.NewStore(ctx, appCfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer store.Close()

	jobStore, err := queue.NewJobStore(appCfg.Queue.StateDir, log.WithField("component", "jobstore"))
	if err != nil {
		log.Fatalf("Job state database initialization failed: %v", err)
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			log.Errorf("Error closing job state database: %v", err)
		}
	}()
	go jobStore.RunGC(ctx, 10*time.Minute)

	jobQueue := queue.New(jobStore, appCfg.Queue, log)

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(httpClient, appCfg, log)
	images := fetch.NewImageFetcher(fetcher, log)
	tiles := tiler.NewGenerator(log)
	optimizer := optimize.NewOptimizer(log)
	uploader := dfs.NewClient(httpClient, appCfg.Swift, log)
	purger := purge.NewNotifier(httpClient, appCfg.Purge, log)

	pipe := pipeline.New(appCfg, store, jobQueue, images, tiles, optimizer, uploader, purger, log)
	jobQueue.OnFailure(pipe.HandleFailure)

	// ===========================================================
	// == Recover Persisted Jobs & Start Worker Pools ==
	// ===========================================================
	if _, err := jobQueue.RequeueIncomplete(ctx); err != nil {
		log.Fatalf("Failed to requeue persisted jobs: %v", err)
	}

	jobQueue.Process(ctx, models.JobTypeFetch, appCfg.Queue.MaxFetchJobs, pipe.FetchHandler)
	jobQueue.Process(ctx, models.JobTypeTile, appCfg.Queue.MaxTileJobs, pipe.TileHandler)
	log.Infof("Worker pools started (fetch: %d, tile: %d)", appCfg.Queue.MaxFetchJobs, appCfg.Queue.MaxTileJobs)

	// ===========================================================
	// == Start HTTP API ==
	// ===========================================================
	checker := health.NewChecker(jobQueue, store, health.DefaultThresholds, log)
	server := api.NewServer(store, pipe, checker, purger, appCfg, log)

	httpServer := &http.Server{
		Addr:    appCfg.ListenAddr,
		Handler: server.Router(),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", appCfg.ListenAddr)
		serverErr <- httpServer.ListenAndServe()
	}()

	// ===========================================================
	// == Wait for Shutdown ==
	// ===========================================================
	select {
	case sig := <-sigCh:
		log.Warnf("Received signal: %v. Shutting down...", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}

	// Cancel in-flight handlers, then wait for the workers. Interrupted jobs
	// stay pending in the job store and are requeued on the next start.
	cancel()
	jobQueue.Shutdown()

	log.Info("Shutdown complete")
}
