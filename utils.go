package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
const ShutdownTimeout = 30 * time.Second

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// setupGracefulShutdown cancels background work and drains the HTTP server on
// SIGINT or SIGTERM. The returned channel closes once shutdown is complete.
func setupGracefulShutdown(srv *http.Server, cancel context.CancelFunc, logger log.Interface) <-chan struct{} {
	done := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(done)
		sig := <-c
		logger.WithField("signal", sig.String()).Info("graceful shutdown initiated")
		cancel()

		ctx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer stop()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("shutdown did not complete cleanly")
			return
		}
		logger.Info("graceful shutdown completed")
	}()
	return done
}
