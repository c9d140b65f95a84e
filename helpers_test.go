package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
)

func testLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

type fakeProber struct {
	title    string
	formatID string
	err      error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (*ProbeResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &ProbeResult{Title: p.title, FormatID: p.formatID}, nil
}

// fakePipeline replays progress reports and writes the output file unless
// skipWrite is set.
type fakePipeline struct {
	progress  []PipelineProgress
	err       error
	skipWrite bool
	// partial, when set, is the extension of a leftover written before
	// the pipeline returns.
	partial string

	mu   sync.Mutex
	reqs []PipelineRequest
}

func (p *fakePipeline) Run(_ context.Context, req PipelineRequest, onProgress func(PipelineProgress)) error {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	for _, pr := range p.progress {
		onProgress(pr)
	}
	if p.partial != "" {
		path := strings.Replace(req.OutputTemplate, "%(ext)s", p.partial, 1)
		if err := os.WriteFile(path, []byte("partial"), 0644); err != nil {
			return err
		}
	}
	if p.err != nil {
		return p.err
	}
	if p.skipWrite {
		return nil
	}
	path := strings.Replace(req.OutputTemplate, "%(ext)s", req.AudioFormat, 1)
	return os.WriteFile(path, []byte("ID3 fake audio"), 0644)
}

func (p *fakePipeline) requests() []PipelineRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PipelineRequest(nil), p.reqs...)
}

func downloading(pcts ...float64) []PipelineProgress {
	out := make([]PipelineProgress, 0, len(pcts))
	for _, p := range pcts {
		out = append(out, PipelineProgress{Status: "downloading", Percent: p})
	}
	return out
}

// fakeFetcher validates like the real fetchers and then answers from a map
// keyed by video id.
type fakeFetcher struct {
	videos map[string]*VideoMetadata
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, videoURL string) (*VideoMetadata, error) {
	id, err := ParseVideoURL(videoURL)
	if err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return meta, nil
}

type fakePlaylistLister struct {
	info *PlaylistInfo
	err  error
}

func (l *fakePlaylistLister) List(_ context.Context, playlistURL string) (*PlaylistInfo, error) {
	if _, err := ParsePlaylistURL(playlistURL); err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.info, nil
}

func testConfig() *Config {
	return &Config{
		AudioQuality:      DefaultAudioQuality,
		Retention:         time.Hour,
		SweepInterval:     time.Minute,
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}
}

type testEnv struct {
	server   *Server
	store    *FileStore
	catalog  *memoryCatalog
	pipeline *fakePipeline
	prober   *fakeProber
	logs     *memory.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, logs := testLogger()
	cfg := testConfig()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	prober := &fakeProber{title: "My Song"}
	pipeline := &fakePipeline{progress: downloading(10, 50, 90)}
	catalog := newMemoryCatalog(cfg.Retention)

	srv := NewServer(cfg, ServerDeps{
		Fetcher: &fakeFetcher{videos: map[string]*VideoMetadata{
			"abc123": {Title: "My Song", Thumbnail: "https://i.ytimg.com/vi/abc123/mqdefault.jpg"},
		}},
		Runner:    NewRunner(store, prober, pipeline, cfg, logger),
		Store:     store,
		Catalog:   catalog,
		Playlists: &fakePlaylistLister{},
		Logger:    logger,
	})
	return &testEnv{server: srv, store: store, catalog: catalog, pipeline: pipeline, prober: prober, logs: logs}
}

// parseEvents decodes every "data:" frame of an event stream body.
func parseEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("Invalid event payload %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func isTerminalEvent(ev map[string]interface{}) bool {
	if _, ok := ev["error"]; ok {
		return true
	}
	return ev["status"] == "completed"
}

var errBoom = errors.New("boom")
