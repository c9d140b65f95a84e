package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// Runner executes one conversion job: probe, name, download+transcode, verify.
type Runner struct {
	store        *FileStore
	prober       Prober
	pipeline     Pipeline
	log          log.Interface
	audioQuality string
	timeout      time.Duration
	jobs         *jobRegistry
}

func NewRunner(store *FileStore, prober Prober, pipeline Pipeline, cfg *Config, logger log.Interface) *Runner {
	return &Runner{
		store:        store,
		prober:       prober,
		pipeline:     pipeline,
		log:          logger,
		audioQuality: cfg.AudioQuality,
		timeout:      cfg.ConvertTimeout,
		jobs:         newJobRegistry(),
	}
}

// Jobs returns the registry of conversions currently running.
func (r *Runner) Jobs() *jobRegistry {
	return r.jobs
}

// Run converts videoURL into a stored audio file, reporting progress to sink
// as the pipeline proceeds. Nothing is retried.
func (r *Runner) Run(ctx context.Context, videoURL string, sink ProgressSink) (*CompletedFile, error) {
	job := &ConversionJob{
		SourceURL: videoURL,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	r.jobs.add(job)
	defer r.jobs.remove(job)
	ctxLog := r.log.WithField("url", videoURL)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	probe, err := r.prober.Probe(ctx, videoURL)
	if err != nil {
		r.fail(job, ctxLog, err, "source could not be resolved")
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	filename := GenerateFilename(probe.Title)
	job.update(func(j *ConversionJob) { j.Filename = filename })
	ctxLog = ctxLog.WithFields(log.Fields{"filename": filename, "title": probe.Title})
	stem := strings.TrimSuffix(filename, outputExt)

	req := PipelineRequest{
		URL:            videoURL,
		FormatID:       probe.FormatID,
		OutputTemplate: filepath.Join(r.store.Dir(), stem+".%(ext)s"),
		AudioFormat:    AudioFormat,
		AudioQuality:   r.audioQuality,
	}
	ctxLog.WithField("format", formatSelector(probe.FormatID)).Info("conversion started")

	tracker := &progressTracker{job: job, sink: sink}
	if err := r.pipeline.Run(ctx, req, tracker.report); err != nil {
		tracker.close()
		r.fail(job, ctxLog, err, "pipeline failed")
		r.cleanup(ctxLog, stem)
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	tracker.finish()

	info, err := r.store.Stat(filename)
	if err != nil {
		names, listErr := r.store.List()
		ctxLog.WithFields(log.Fields{
			"dir":      r.store.Dir(),
			"contents": names,
			"list_err": listErr,
		}).Error("expected output file not found")
		r.fail(job, ctxLog, err, "output missing")
		r.cleanup(ctxLog, stem)
		return nil, fmt.Errorf("%w: %s", ErrOutputMissing, filename)
	}

	job.update(func(j *ConversionJob) { j.Status = StatusCompleted })
	ctxLog.WithFields(log.Fields{
		"size":    info.Size(),
		"elapsed": time.Since(job.StartedAt).String(),
	}).Info("conversion completed")

	return &CompletedFile{
		Filename: filename,
		Title:    probe.Title,
		Size:     info.Size(),
	}, nil
}

func (r *Runner) fail(job *ConversionJob, ctxLog *log.Entry, err error, msg string) {
	job.update(func(j *ConversionJob) {
		j.Status = StatusFailed
		j.Error = err.Error()
	})
	ctxLog.WithError(err).WithField("elapsed", time.Since(job.StartedAt).String()).Error(msg)
}

// cleanup drops whatever a failed job left under its stem.
func (r *Runner) cleanup(ctxLog *log.Entry, stem string) {
	removed, err := r.store.RemovePartials(stem)
	if err != nil {
		ctxLog.WithError(err).Warn("could not remove partial output")
		return
	}
	if len(removed) > 0 {
		ctxLog.WithField("removed", removed).Info("partial output removed")
	}
}

// progressTracker turns raw pipeline reports into sink calls: percent never
// decreases, finished is reported once, and nothing is reported after the
// pipeline returns. The pipeline may call report from its own goroutine.
type progressTracker struct {
	mu       sync.Mutex
	job      *ConversionJob
	sink     ProgressSink
	percent  int
	reported bool
	finished bool
	closed   bool
}

func (t *progressTracker) report(p PipelineProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.finished {
		return
	}

	if p.Status == string(StatusFinished) {
		t.markFinished()
		return
	}
	if p.Status != string(StatusDownloading) {
		return
	}

	pct := int(p.Percent)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if t.reported && pct <= t.percent {
		return
	}
	t.reported = true
	t.percent = pct
	t.job.update(func(j *ConversionJob) {
		j.Percent = pct
		j.Status = StatusDownloading
	})
	t.sink.Downloading(pct)
}

// finish guarantees a finished event before the job completes.
func (t *progressTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished {
		t.markFinished()
	}
	t.closed = true
}

func (t *progressTracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *progressTracker) markFinished() {
	t.finished = true
	t.percent = 100
	t.job.update(func(j *ConversionJob) {
		j.Percent = 100
		j.Status = StatusFinished
	})
	t.sink.Finished()
}
