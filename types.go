package main

import (
	"sync"
	"time"
)

// VideoMetadata is the subset of upstream video details returned by
// /get_video_info. Fetched per request and never cached.
type VideoMetadata struct {
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description,omitempty"`
}

// JobStatus represents the current state of a conversion job
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusFinished    JobStatus = "finished"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// IsTerminal reports whether no further events may follow this status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ConversionJob holds the state of a single /convert request. It lives only
// as long as the request's event stream. Fields are written through update.
type ConversionJob struct {
	mu        sync.Mutex
	SourceURL string
	Filename  string
	Status    JobStatus
	Percent   int
	Error     string
	StartedAt time.Time
}

func (j *ConversionJob) update(fn func(j *ConversionJob)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// View returns a point-in-time copy safe to serialize.
func (j *ConversionJob) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{
		SourceURL: j.SourceURL,
		Filename:  j.Filename,
		Status:    j.Status,
		Percent:   j.Percent,
		Elapsed:   time.Since(j.StartedAt).Round(time.Second).String(),
	}
}

// JobView is the /stats representation of an in-flight conversion.
type JobView struct {
	SourceURL string    `json:"source_url"`
	Filename  string    `json:"filename,omitempty"`
	Status    JobStatus `json:"status"`
	Percent   int       `json:"percent"`
	Elapsed   string    `json:"elapsed"`
}

// CompletedFile is the result of a successful conversion.
type CompletedFile struct {
	Filename string
	Title    string
	Size     int64
}

// FileRecord is the catalog entry kept for a produced file.
type FileRecord struct {
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Downloads int64     `json:"downloads"`
}

// PlaylistItem is a single entry returned by /get_playlist_info.
type PlaylistItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PlaylistInfo is the /get_playlist_info response body.
type PlaylistInfo struct {
	ID    string         `json:"id"`
	Items []PlaylistItem `json:"items"`
}

type HealthStatus struct {
	Status            string  `json:"status"`
	ActiveConversions int64   `json:"active_conversions"`
	CompletedJobs     int64   `json:"completed_jobs"`
	FailedJobs        int64   `json:"failed_jobs"`
	Uptime            string  `json:"uptime"`
	MemoryUsage       string  `json:"memory_usage"`
	DiskFreeBytes     uint64  `json:"disk_free_bytes"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	Catalog           string  `json:"catalog"`
}
