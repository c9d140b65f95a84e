package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/kkdai/youtube/v2"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

// MetadataFetcher resolves a video URL to the details shown before conversion.
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoURL string) (*VideoMetadata, error)
}

// Thumbnail width the Data API calls "medium".
const mediumThumbnailWidth = 320

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ParseVideoURL extracts the video identifier from the v query parameter of
// an http(s) URL.
func ParseVideoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: unsupported url %q", ErrInvalidURL, raw)
	}
	id := u.Query().Get("v")
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: missing or malformed v parameter", ErrInvalidURL)
	}
	return id, nil
}

// DataAPIFetcher queries the YouTube Data API v3.
type DataAPIFetcher struct {
	svc *ytapi.Service
	log log.Interface
}

var _ MetadataFetcher = (*DataAPIFetcher)(nil)

// NewDataAPIFetcher builds a Data API client keyed by apiKey. Extra options
// are appended after the key (tests use option.WithEndpoint).
func NewDataAPIFetcher(ctx context.Context, apiKey string, logger log.Interface, opts ...option.ClientOption) (*DataAPIFetcher, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube data api client: %w", err)
	}
	return &DataAPIFetcher{svc: svc, log: logger}, nil
}

func (f *DataAPIFetcher) Fetch(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	id, err := ParseVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctxLog := f.log.WithFields(log.Fields{"video_id": id, "source": "data_api"})

	resp, err := f.svc.Videos.List([]string{"snippet"}).Id(id).Context(ctx).Do()
	if err != nil {
		ctxLog.WithError(err).WithField("elapsed", time.Since(start).String()).Error("metadata lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(resp.Items) == 0 {
		ctxLog.Info("video not found")
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, id)
	}
	snippet := resp.Items[0].Snippet
	if snippet == nil {
		ctxLog.Error("metadata response without snippet")
		return nil, fmt.Errorf("%w: empty snippet for %s", ErrUpstream, id)
	}

	meta := &VideoMetadata{
		Title:       snippet.Title,
		Description: snippet.Description,
		Thumbnail:   pickDataAPIThumbnail(snippet.Thumbnails),
	}
	ctxLog.WithField("elapsed", time.Since(start).String()).Debug("metadata fetched")
	return meta, nil
}

func pickDataAPIThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*ytapi.Thumbnail{t.Medium, t.High, t.Default, t.Standard, t.Maxres} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// PlayerFetcher reads metadata from the public player response. It is used
// when no Data API key is configured.
type PlayerFetcher struct {
	client *youtube.Client
	log    log.Interface
}

var _ MetadataFetcher = (*PlayerFetcher)(nil)

// NewPlayerFetcher builds the player client. A nil httpClient means
// http.DefaultClient.
func NewPlayerFetcher(logger log.Interface, httpClient *http.Client) *PlayerFetcher {
	return &PlayerFetcher{client: &youtube.Client{HTTPClient: httpClient}, log: logger}
}

func (f *PlayerFetcher) Fetch(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	id, err := ParseVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctxLog := f.log.WithFields(log.Fields{"video_id": id, "source": "player"})

	video, err := f.client.GetVideoContext(ctx, id)
	if err != nil {
		if isPlayerNotFound(err) {
			ctxLog.WithError(err).Info("video not found")
			return nil, fmt.Errorf("%w: video %s: %v", ErrNotFound, id, err)
		}
		ctxLog.WithError(err).WithField("elapsed", time.Since(start).String()).Error("metadata lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return &VideoMetadata{
		Title:       video.Title,
		Description: video.Description,
		Thumbnail:   pickPlayerThumbnail(video.Thumbnails),
	}, nil
}

// isPlayerNotFound reports whether the player rejected the id or reported the
// video as unavailable, as opposed to a transport or parsing failure.
func isPlayerNotFound(err error) bool {
	var status *youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoPrivate):
		return true
	case errors.As(err, &status):
		return true
	}
	return false
}

// pickPlayerThumbnail returns the thumbnail whose width is closest to the
// Data API medium size.
func pickPlayerThumbnail(thumbs youtube.Thumbnails) string {
	best := ""
	bestDiff := -1
	for _, th := range thumbs {
		diff := int(th.Width) - mediumThumbnailWidth
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = th.URL, diff
		}
	}
	return best
}
