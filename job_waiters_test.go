package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobRegistryWait(t *testing.T) {
	r := newJobRegistry()
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on an empty registry should return at once, got %v", err)
	}

	a := &ConversionJob{SourceURL: "a", StartedAt: time.Now().Add(-time.Second)}
	b := &ConversionJob{SourceURL: "b", StartedAt: time.Now()}
	r.add(a)
	r.add(b)

	views := r.Snapshot()
	if len(views) != 2 || views[0].SourceURL != "a" {
		t.Errorf("Expected two jobs oldest first, got %+v", views)
	}

	done := make(chan error, 1)
	go func() { done <- r.Wait(context.Background()) }()

	r.remove(a)
	select {
	case <-done:
		t.Fatal("Wait returned while a job was still running")
	case <-time.After(20 * time.Millisecond):
	}

	r.remove(b)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last job finished")
	}
}

func TestJobRegistryWaitTimeout(t *testing.T) {
	r := newJobRegistry()
	r.add(&ConversionJob{StartedAt: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if len(r.waiters) != 0 {
		t.Errorf("Expected waiter to be unregistered, got %d", len(r.waiters))
	}
}

func TestConversionJobView(t *testing.T) {
	job := &ConversionJob{SourceURL: "u", StartedAt: time.Now()}
	job.update(func(j *ConversionJob) {
		j.Status = StatusDownloading
		j.Percent = 40
	})
	v := job.View()
	if v.Status != StatusDownloading || v.Percent != 40 || v.SourceURL != "u" {
		t.Errorf("Unexpected view %+v", v)
	}
}
