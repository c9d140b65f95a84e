package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/ytget/ytdlp/v2"
)

const (
	PlaylistParseTimeout    = 60 * time.Second
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

var playlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,64}$`)

// PlaylistLister lists the videos of a playlist.
type PlaylistLister interface {
	List(ctx context.Context, playlistURL string) (*PlaylistInfo, error)
}

// ParsePlaylistURL extracts the playlist identifier from the list query parameter.
func ParsePlaylistURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: unsupported url %q", ErrInvalidURL, raw)
	}
	id := u.Query().Get("list")
	if !playlistIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: missing or malformed list parameter", ErrInvalidURL)
	}
	return id, nil
}

// ytdlpPlaylistLister fetches playlist items with the ytdlp library.
type ytdlpPlaylistLister struct {
	timeout time.Duration
	log     log.Interface
}

func newPlaylistLister(logger log.Interface) *ytdlpPlaylistLister {
	return &ytdlpPlaylistLister{timeout: PlaylistParseTimeout, log: logger}
}

func (l *ytdlpPlaylistLister) List(ctx context.Context, playlistURL string) (*PlaylistInfo, error) {
	id, err := ParsePlaylistURL(playlistURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, id, 0)
	if err != nil {
		l.log.WithError(err).WithField("playlist_id", id).Error("playlist lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: playlist %s", ErrNotFound, id)
	}

	info := &PlaylistInfo{ID: id, Items: make([]PlaylistItem, 0, len(items))}
	for _, it := range items {
		info.Items = append(info.Items, PlaylistItem{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	l.log.WithFields(log.Fields{
		"playlist_id": id,
		"items":       len(info.Items),
		"elapsed":     time.Since(start).String(),
	}).Debug("playlist fetched")
	return info, nil
}
