package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	errStreamingUnsupported = errors.New("streaming not supported")
	errStreamClosed         = errors.New("event stream already terminated")
)

// ProgressSink receives job progress synchronously from the pipeline callback.
type ProgressSink interface {
	Downloading(percent int)
	Finished()
}

// ProgressEvent is one message on a conversion stream.
type ProgressEvent struct {
	Status   JobStatus
	Percent  int
	Filename string
	FileSize int64
	Error    string
}

type eventPayload struct {
	Progress string `json:"progress,omitempty"`
	Status   string `json:"status,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileSize int64  `json:"filesize,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (ev ProgressEvent) payload() eventPayload {
	switch ev.Status {
	case StatusDownloading:
		return eventPayload{Progress: strconv.Itoa(ev.Percent), Status: string(StatusDownloading)}
	case StatusFinished:
		return eventPayload{Progress: "100", Status: string(StatusFinished)}
	case StatusCompleted:
		return eventPayload{Filename: ev.Filename, FileSize: ev.FileSize, Status: string(StatusCompleted)}
	default:
		return eventPayload{Error: ev.Error}
	}
}

// Publisher writes ProgressEvents to a response as server-sent events.
// Nothing may be written after a terminal event.
type Publisher struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	terminated bool
}

// NewPublisher commits the event-stream headers.
func NewPublisher(w http.ResponseWriter) (*Publisher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Publisher{w: w, flusher: flusher}, nil
}

// Send serializes one event as "data: <json>" followed by a blank line.
func (p *Publisher) Send(ev ProgressEvent) error {
	if p.terminated {
		return errStreamClosed
	}
	if ev.Status.IsTerminal() {
		p.terminated = true
	}
	data, err := json.Marshal(ev.payload())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(p.w, "data: %s\n\n", data); err != nil {
		return err
	}
	p.flusher.Flush()
	return nil
}

// KeepAlive writes an SSE comment so idle proxies keep the stream open.
func (p *Publisher) KeepAlive() error {
	if p.terminated {
		return errStreamClosed
	}
	if _, err := fmt.Fprint(p.w, ": ping\n\n"); err != nil {
		return err
	}
	p.flusher.Flush()
	return nil
}

// Terminated reports whether a terminal event was sent.
func (p *Publisher) Terminated() bool {
	return p.terminated
}

// channelSink forwards sink calls into the stream's event channel.
type channelSink chan<- ProgressEvent

func (c channelSink) Downloading(percent int) {
	c <- ProgressEvent{Status: StatusDownloading, Percent: percent}
}

func (c channelSink) Finished() {
	c <- ProgressEvent{Status: StatusFinished, Percent: 100}
}

// runFunc executes one conversion, reporting into sink.
type runFunc func(sink ProgressSink) (*CompletedFile, error)

// streamConversion runs a job on its own goroutine and drains its events to
// the publisher until the terminal event. Write failures (client gone) do not
// stop the job; remaining events are drained and discarded.
func streamConversion(pub *Publisher, run runFunc, keepAlive time.Duration) (sendErr error) {
	events := make(chan ProgressEvent, 16)

	go func() {
		defer close(events)
		file, err := run(channelSink(events))
		if err != nil {
			events <- ProgressEvent{Status: StatusFailed, Error: conversionMessage(err)}
			return
		}
		events <- ProgressEvent{Status: StatusCompleted, Filename: file.Filename, FileSize: file.Size}
	}()

	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return sendErr
			}
			if sendErr != nil {
				continue
			}
			if err := pub.Send(ev); err != nil {
				sendErr = err
			}
		case <-tick:
			if sendErr == nil && !pub.Terminated() {
				if err := pub.KeepAlive(); err != nil {
					sendErr = err
				}
			}
		}
	}
}
