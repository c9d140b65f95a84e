package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
)

// POST /get_video_info
func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	videoURL := strings.TrimSpace(r.PostFormValue("video_url"))
	if videoURL == "" {
		writeJSONError(w, http.StatusBadRequest, MsgMissingURL)
		return
	}

	meta, err := s.fetcher.Fetch(r.Context(), videoURL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, meta)
	case errors.Is(err, ErrInvalidURL):
		writeJSONError(w, http.StatusBadRequest, MsgInvalidURL)
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, MsgVideoNotFound)
	default:
		s.log.WithError(err).WithField("url", videoURL).Error("video info failed")
		writeJSONError(w, http.StatusInternalServerError, MsgUpstreamError)
	}
}

// POST /convert
//
// Input problems are reported with a plain HTTP status. Once the event stream
// starts every outcome, including failure, is a terminal stream event.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	videoURL := strings.TrimSpace(r.PostFormValue("video_url"))
	if videoURL == "" {
		writeJSONError(w, http.StatusBadRequest, MsgMissingURL)
		return
	}
	if _, err := ParseVideoURL(videoURL); err != nil {
		writeJSONError(w, http.StatusBadRequest, MsgInvalidURL)
		return
	}

	pub, err := NewPublisher(w)
	if err != nil {
		s.log.WithError(err).Error("cannot stream conversion")
		writeJSONError(w, http.StatusInternalServerError, MsgConversionError)
		return
	}

	// The job outlives a disconnected client.
	jobCtx := context.WithoutCancel(r.Context())
	s.stats.activeConversions.Add(1)
	defer s.stats.activeConversions.Add(-1)

	sendErr := streamConversion(pub, func(sink ProgressSink) (*CompletedFile, error) {
		start := time.Now()
		file, err := s.runner.Run(jobCtx, videoURL, sink)
		s.stats.totalConvertNanos.Add(int64(time.Since(start)))
		if err != nil {
			s.stats.failedJobs.Add(1)
			return nil, err
		}
		s.stats.completedJobs.Add(1)
		rec := &FileRecord{
			Filename:  file.Filename,
			Title:     file.Title,
			SourceURL: videoURL,
			Size:      file.Size,
			CreatedAt: time.Now(),
		}
		if err := s.catalog.Save(jobCtx, rec); err != nil {
			s.log.WithError(err).WithField("filename", file.Filename).Warn("catalog save failed")
		}
		return file, nil
	}, s.keepAlive)

	if sendErr != nil {
		s.log.WithError(sendErr).WithField("url", videoURL).Warn("client left before the conversion stream ended")
	}
}

// GET /download/{filename}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	f, info, err := s.store.Open(name)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidFilename):
		s.log.WithField("filename", name).Warn("rejected download filename")
		writeJSONError(w, http.StatusBadRequest, MsgInvalidFilename)
		return
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf(MsgFileNotFound, name))
		return
	default:
		s.log.WithError(err).WithField("filename", name).Error("open stored file failed")
		writeJSONError(w, http.StatusInternalServerError, "Error opening file.")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	http.ServeContent(rec, r, name, info.ModTime(), f)

	// Conditional, unsatisfiable and HEAD requests deliver no audio.
	if r.Method == http.MethodHead || (rec.status != http.StatusOK && rec.status != http.StatusPartialContent) {
		return
	}
	s.stats.downloads.Add(1)
	if n, err := s.catalog.IncrDownloads(r.Context(), name); err == nil {
		s.log.WithFields(log.Fields{"filename": name, "downloads": n}).Debug("file downloaded")
	}
}

type fileStatus struct {
	*FileRecord
	DownloadURL string     `json:"download_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// GET /status/{filename}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := ValidateName(name); err != nil {
		writeJSONError(w, http.StatusBadRequest, MsgInvalidFilename)
		return
	}

	info, err := s.store.Stat(name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf(MsgFileNotFound, name))
		return
	}

	rec, err := s.catalog.Get(r.Context(), name)
	if err != nil {
		// Produced before a restart or without a catalog record.
		rec = &FileRecord{Filename: name, Size: info.Size(), CreatedAt: info.ModTime()}
	}

	resp := fileStatus{FileRecord: rec, DownloadURL: "/download/" + name}
	if s.retention > 0 {
		expires := info.ModTime().Add(s.retention)
		resp.ExpiresAt = &expires
	}
	writeJSON(w, http.StatusOK, resp)
}

// DELETE /delete/{filename}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	err := s.store.Remove(name)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidFilename):
		writeJSONError(w, http.StatusBadRequest, MsgInvalidFilename)
		return
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf(MsgFileNotFound, name))
		return
	default:
		s.log.WithError(err).WithField("filename", name).Error("delete failed")
		writeJSONError(w, http.StatusInternalServerError, "Error deleting file.")
		return
	}

	if err := s.catalog.Delete(r.Context(), name); err != nil {
		s.log.WithError(err).WithField("filename", name).Warn("catalog delete failed")
	}
	s.log.WithField("filename", name).Info("file deleted")
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// POST /get_playlist_info
func (s *Server) handlePlaylistInfo(w http.ResponseWriter, r *http.Request) {
	playlistURL := strings.TrimSpace(r.PostFormValue("playlist_url"))
	if playlistURL == "" {
		writeJSONError(w, http.StatusBadRequest, MsgInvalidPlaylist)
		return
	}

	info, err := s.playlists.List(r.Context(), playlistURL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, ErrInvalidURL):
		writeJSONError(w, http.StatusBadRequest, MsgInvalidPlaylist)
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Playlist not found or empty.")
	default:
		writeJSONError(w, http.StatusInternalServerError, MsgPlaylistError)
	}
}
