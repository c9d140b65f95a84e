package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// ProbeResult is what the pre-download probe learns about a source.
type ProbeResult struct {
	Title    string
	Duration float64
	FormatID string // preferred audio format, empty to let the pipeline choose
}

// Prober resolves a source's canonical title before downloading.
type Prober interface {
	Probe(ctx context.Context, videoURL string) (*ProbeResult, error)
}

// PipelineProgress is a single report from the download/transcode pipeline.
type PipelineProgress struct {
	Status  string  // downloading, finished, post_processing, ...
	Percent float64 // 0-100, zero when the total size is unknown
}

// PipelineRequest describes one extraction run.
type PipelineRequest struct {
	URL            string
	FormatID       string
	OutputTemplate string
	AudioFormat    string
	AudioQuality   string
}

// Pipeline downloads a source and transcodes it to audio. The progress
// callback is invoked while Run is still executing.
type Pipeline interface {
	Run(ctx context.Context, req PipelineRequest, onProgress func(PipelineProgress)) error
}

type ytdlpFormat struct {
	FormatID string  `json:"format_id"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	Ext      string  `json:"ext"`
	Protocol string  `json:"protocol"`
	URL      string  `json:"url"`
	ABR      float64 `json:"abr"`
	TBR      float64 `json:"tbr"`
}

type ytdlpInfo struct {
	Title    string        `json:"title"`
	Uploader string        `json:"uploader"`
	Duration float64       `json:"duration"`
	Formats  []ytdlpFormat `json:"formats"`
}

// ytdlpProber probes sources with yt-dlp's JSON dump.
type ytdlpProber struct{}

func (ytdlpProber) Probe(ctx context.Context, videoURL string) (*ProbeResult, error) {
	res, err := ytdlp.New().
		NoWarnings().
		NoPlaylist().
		SkipDownload().
		DumpJSON().
		Run(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata error: %w", err)
	}
	return parseProbeOutput([]byte(res.Stdout))
}

// parseProbeOutput reads a yt-dlp JSON dump and picks the preferred audio format.
func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("yt-dlp metadata parse error: %v", err)
	}
	if strings.TrimSpace(info.Title) == "" {
		return nil, fmt.Errorf("yt-dlp metadata has no title")
	}
	return &ProbeResult{
		Title:    info.Title,
		Duration: info.Duration,
		FormatID: bestAudioFormat(info.Formats),
	}, nil
}

// bestAudioFormat prefers audio-only formats, falling back to any format
// carrying audio. Returns "" when nothing usable is listed.
func bestAudioFormat(formats []ytdlpFormat) string {
	candidates := make([]ytdlpFormat, 0, len(formats))
	for _, f := range formats {
		if f.FormatID == "" {
			continue
		}
		isAudioOnly := (f.VCodec == "none" || f.VCodec == "") && f.ACodec != "none" && f.ACodec != ""
		if isAudioOnly {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		for _, f := range formats {
			if f.FormatID != "" && f.ACodec != "none" && f.ACodec != "" {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := scoreFormat(candidates[i]), scoreFormat(candidates[j])
		if si == sj {
			return candidates[i].ABR > candidates[j].ABR
		}
		return si > sj
	})
	return candidates[0].FormatID
}

func scoreFormat(f ytdlpFormat) int {
	score := 0
	switch strings.ToLower(f.Ext) {
	case "m4a":
		score += 100
	case "webm":
		score += 90
	case "ogg", "opus":
		score += 85
	case "mp4":
		score += 70
	default:
		score += 60
	}
	p := strings.ToLower(f.Protocol)
	if strings.HasPrefix(p, "https") {
		score += 30
	} else if strings.HasPrefix(p, "http") {
		score += 25
	} else if strings.Contains(p, "m3u8") || strings.Contains(p, "hls") {
		score += 20
	} else if strings.Contains(p, "dash") {
		score += 15
	}
	if f.ABR > 0 {
		score += int(f.ABR)
	} else if f.TBR > 0 {
		score += int(f.TBR / 2)
	}
	return score
}

// formatSelector falls back to yt-dlp's own choice when the preferred
// format is gone by download time.
func formatSelector(formatID string) string {
	if formatID == "" {
		return "bestaudio/best"
	}
	return formatID + "/bestaudio/best"
}

// ytdlpPipeline downloads and transcodes with yt-dlp's audio extraction
// post-processor (ffmpeg).
type ytdlpPipeline struct{}

func (ytdlpPipeline) Run(ctx context.Context, req PipelineRequest, onProgress func(PipelineProgress)) error {
	dl := ytdlp.New().
		NoWarnings().
		NoPlaylist().
		ForceOverwrites().
		Format(formatSelector(req.FormatID)).
		ExtractAudio().
		AudioFormat(req.AudioFormat).
		AudioQuality(req.AudioQuality).
		Output(req.OutputTemplate)

	dl.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
		p := PipelineProgress{Status: string(update.Status)}
		if update.TotalBytes > 0 {
			p.Percent = float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
		}
		onProgress(p)
	})

	if _, err := dl.Run(ctx, req.URL); err != nil {
		return fmt.Errorf("yt-dlp download error: %w", err)
	}
	return nil
}
