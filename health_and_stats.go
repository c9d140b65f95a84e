package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
)

// Active conversions above this count report the service as overloaded.
const overloadedConversions = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := s.stats.activeConversions.Load()
	status := "healthy"
	if active > overloadedConversions {
		status = "overloaded"
	}

	health := HealthStatus{
		Status:            status,
		ActiveConversions: active,
		CompletedJobs:     s.stats.completedJobs.Load(),
		FailedJobs:        s.stats.failedJobs.Load(),
		Uptime:            time.Since(s.startedAt).Round(time.Second).String(),
		MemoryUsage:       getMemoryUsage(r.Context()),
		Catalog:           s.catalog.Backend(),
	}
	if usage, err := disk.UsageWithContext(r.Context(), s.store.Dir()); err == nil {
		health.DiskFreeBytes = usage.Free
		health.DiskUsedPercent = usage.UsedPercent
		if usage.Free < minFreeDiskBytes {
			health.Status = "low_disk"
		}
	} else {
		s.log.WithError(err).Debug("disk usage unavailable")
	}
	writeJSON(w, http.StatusOK, health)
}

// Free space below this marks the download directory as nearly full.
const minFreeDiskBytes = 256 << 20

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"active_conversions": s.stats.activeConversions.Load(),
		"completed_jobs":     s.stats.completedJobs.Load(),
		"failed_jobs":        s.stats.failedJobs.Load(),
		"downloads":          s.stats.downloads.Load(),
		"rate_limit":         float64(s.limiter.Limit()),
		"burst":              s.limiter.Burst(),
		"uptime_seconds":     time.Since(s.startedAt).Seconds(),
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.List()
	if err != nil {
		s.log.WithError(err).Warn("listing download directory failed")
	}
	stats := map[string]interface{}{
		"stored_files":        len(files),
		"active_conversions":  s.stats.activeConversions.Load(),
		"completed_jobs":      s.stats.completedJobs.Load(),
		"failed_jobs":         s.stats.failedJobs.Load(),
		"success_rate":        s.successRate(),
		"avg_processing_time": s.avgProcessingTime(),
		"retention_seconds":   s.retention.Seconds(),
		"catalog":             s.catalog.Backend(),
		"jobs":                s.runner.Jobs().Snapshot(),
	}
	writeJSON(w, http.StatusOK, stats)
}

// successRate is the percentage of finished conversions that succeeded.
func (s *Server) successRate() float64 {
	completed := s.stats.completedJobs.Load()
	total := completed + s.stats.failedJobs.Load()
	if total == 0 {
		return 0
	}
	return float64(completed) * 100 / float64(total)
}

// avgProcessingTime is the mean conversion wall time in seconds.
func (s *Server) avgProcessingTime() float64 {
	total := s.stats.completedJobs.Load() + s.stats.failedJobs.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(s.stats.totalConvertNanos.Load() / total).Seconds()
}

func getMemoryUsage(ctx context.Context) string {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return "N/A"
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f MiB", float64(info.RSS)/(1<<20))
}
