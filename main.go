package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/lrstanley/go-ytdlp"
)

//go:embed static
var staticFiles embed.FS

func main() {
	cfg := LoadConfig()
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.InstallYTDLP {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			logger.WithError(err).Fatal("yt-dlp install failed")
		}
		logger.Info("yt-dlp resolved")
	}

	store, err := NewFileStore(cfg.DownloadDir)
	if err != nil {
		logger.WithError(err).WithField("dir", cfg.DownloadDir).Fatal("cannot prepare download directory")
	}

	fetcher, err := newMetadataFetcher(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("cannot create metadata fetcher")
	}

	catalog := newCatalog(ctx, cfg, logger)
	runner := NewRunner(store, ytdlpProber{}, ytdlpPipeline{}, cfg, logger)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logger.WithError(err).Fatal("embedded UI missing")
	}

	srv := NewServer(cfg, ServerDeps{
		Fetcher:   fetcher,
		Runner:    runner,
		Store:     store,
		Catalog:   catalog,
		Playlists: newPlaylistLister(logger),
		Static:    static,
		Logger:    logger,
	})

	go NewSweeper(store, catalog, cfg, logger).Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: conversion streams stay open for the whole job.
	}
	done := setupGracefulShutdown(httpServer, cancel, logger)

	logger.WithFields(log.Fields{
		"addr":      httpServer.Addr,
		"dir":       store.Dir(),
		"catalog":   catalog.Backend(),
		"retention": cfg.Retention.String(),
	}).Info("🚀 server listening")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server failed")
		os.Exit(1)
	}
	<-done

	waitCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if err := runner.Jobs().Wait(waitCtx); err != nil {
		logger.WithField("running", runner.Jobs().Len()).Warn("exiting with conversions still running")
	}
}

// newMetadataFetcher prefers the Data API when a key is configured and falls
// back to the player-based client otherwise.
func newMetadataFetcher(ctx context.Context, cfg *Config, logger log.Interface) (MetadataFetcher, error) {
	if cfg.YouTubeAPIKey != "" {
		logger.Info("using YouTube Data API for video info")
		f, err := NewDataAPIFetcher(ctx, cfg.YouTubeAPIKey, logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	logger.Info("no YOUTUBE_API_KEY set, using player client for video info")
	return NewPlayerFetcher(logger, nil), nil
}
