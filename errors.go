package main

import "errors"

// Error taxonomy shared by every component. Handlers map these with errors.Is;
// the wrapped upstream text is only ever logged.
var (
	ErrInvalidURL       = errors.New("invalid video url")
	ErrNotFound         = errors.New("not found")
	ErrUpstream         = errors.New("metadata service error")
	ErrExtraction       = errors.New("extraction failed")
	ErrConversionFailed = errors.New("conversion failed")
	ErrOutputMissing    = errors.New("output file missing")
	ErrInvalidFilename  = errors.New("invalid filename")
)

// User-facing messages. These never include upstream error text.
const (
	MsgInvalidURL      = "Invalid YouTube URL. Please check the link and try again."
	MsgMissingURL      = "Missing YouTube URL. Please provide a video_url."
	MsgVideoNotFound   = "Video not found. Please check the URL and try again."
	MsgUpstreamError   = "Error fetching video information. Please try again later."
	MsgConversionError = "Error during conversion. Please try again later."
	MsgExtractionError = "Error during conversion: the video could not be resolved."
	MsgOutputMissing   = "Error during conversion: the audio file was not produced."
	MsgInvalidFilename = "Invalid filename."
	MsgFileNotFound    = "File not found: %s. Please convert the video again."
	MsgInvalidPlaylist = "Invalid YouTube playlist URL. Please check the link and try again."
	MsgPlaylistError   = "Error fetching playlist information. Please try again later."
)

// conversionMessage picks the terminal stream message for a failed job.
func conversionMessage(err error) string {
	switch {
	case errors.Is(err, ErrExtraction):
		return MsgExtractionError
	case errors.Is(err, ErrOutputMissing):
		return MsgOutputMissing
	default:
		return MsgConversionError
	}
}
