package main

import (
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"golang.org/x/time/rate"
)

// serverStats are process-lifetime counters reported by /health, /metrics and /stats.
type serverStats struct {
	activeConversions atomic.Int64
	completedJobs     atomic.Int64
	failedJobs        atomic.Int64
	downloads         atomic.Int64
	totalConvertNanos atomic.Int64
}

// Server wires the components behind the HTTP surface.
type Server struct {
	fetcher   MetadataFetcher
	runner    *Runner
	store     *FileStore
	catalog   Catalog
	playlists PlaylistLister
	limiter   *rate.Limiter
	log       log.Interface
	static    fs.FS

	retention time.Duration
	keepAlive time.Duration
	startedAt time.Time
	stats     serverStats
}

// ServerDeps groups the collaborators handed to NewServer.
type ServerDeps struct {
	Fetcher   MetadataFetcher
	Runner    *Runner
	Store     *FileStore
	Catalog   Catalog
	Playlists PlaylistLister
	Static    fs.FS
	Logger    log.Interface
}

func NewServer(cfg *Config, deps ServerDeps) *Server {
	return &Server{
		fetcher:   deps.Fetcher,
		runner:    deps.Runner,
		store:     deps.Store,
		catalog:   deps.Catalog,
		playlists: deps.Playlists,
		static:    deps.Static,
		log:       deps.Logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		retention: cfg.Retention,
		keepAlive: KeepAliveInterval,
		startedAt: time.Now(),
	}
}

// Handler returns the routed, middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /get_video_info", rateLimitMiddleware(s.limiter, s.handleVideoInfo))
	mux.HandleFunc("POST /convert", rateLimitMiddleware(s.limiter, s.handleConvert))
	mux.HandleFunc("POST /get_playlist_info", rateLimitMiddleware(s.limiter, s.handlePlaylistInfo))
	mux.HandleFunc("GET /download/{filename}", rateLimitMiddleware(s.limiter, s.handleDownload))
	mux.HandleFunc("GET /status/{filename}", s.handleStatus)
	mux.HandleFunc("DELETE /delete/{filename}", s.handleDelete)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /stats", s.handleStats)

	if s.static != nil {
		mux.Handle("GET /", http.FileServerFS(s.static))
	}

	return corsMiddleware(loggingMiddleware(s.log, mux))
}
