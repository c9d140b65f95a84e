package main

import (
	"context"
	"time"

	"github.com/apex/log"
)

// Sweeper evicts produced files once they are older than the retention period.
type Sweeper struct {
	store     *FileStore
	catalog   Catalog
	log       log.Interface
	retention time.Duration
	interval  time.Duration
}

func NewSweeper(store *FileStore, catalog Catalog, cfg *Config, logger log.Interface) *Sweeper {
	return &Sweeper{
		store:     store,
		catalog:   catalog,
		log:       logger,
		retention: cfg.Retention,
		interval:  cfg.SweepInterval,
	}
}

// Start runs the sweep loop until ctx is done. It returns immediately when
// retention is disabled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.retention <= 0 || s.interval <= 0 {
		s.log.Info("file retention disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Sweep removes expired files and their catalog records, returning how many
// files were removed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	removed, err := s.store.Sweep(s.retention, now)
	if err != nil {
		s.log.WithError(err).WithField("dir", s.store.Dir()).Error("retention sweep failed")
	}
	for _, name := range removed {
		if err := s.catalog.Delete(ctx, name); err != nil {
			s.log.WithError(err).WithField("filename", name).Warn("catalog delete failed")
		}
	}
	if len(removed) > 0 {
		s.log.WithFields(log.Fields{"removed": len(removed), "retention": s.retention.String()}).Info("expired files removed")
	}
	return len(removed)
}
