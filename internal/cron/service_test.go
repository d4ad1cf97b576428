package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

type fakeLock struct {
	held     map[string]bool
	released []string
	err      error
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]bool{}} }

func (f *fakeLock) Acquire(_ context.Context, job string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	delete(f.held, job)
	f.released = append(f.released, job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type recordingMetrics struct {
	durations map[string]int
	success   map[string]int
	failure   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{durations: map[string]int{}, success: map[string]int{}, failure: map[string]int{}}
}

func (m *recordingMetrics) ObserveDuration(job string, _ time.Duration) { m.durations[job]++ }
func (m *recordingMetrics) IncSuccess(job string)                       { m.success[job]++ }
func (m *recordingMetrics) IncFailure(job string)                       { m.failure[job]++ }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry := NewRegistry()
	registry.Register("@every 1m", success)
	registry.Register("@every 1m", failure)
	lock := newFakeLock()
	metrics := newRecordingMetrics()

	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock, Metrics: metrics})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", success.runs, failure.runs)
	}
	if metrics.success["success"] != 1 || metrics.failure["fail"] != 1 {
		t.Fatalf("unexpected metrics: success=%v failure=%v", metrics.success, metrics.failure)
	}
	if metrics.durations["success"] != 1 || metrics.durations["fail"] != 1 {
		t.Fatalf("expected durations for both jobs, got %v", metrics.durations)
	}
	if len(lock.released) != 2 || len(lock.held) != 0 {
		t.Fatalf("expected both locks released, released=%v held=%v", lock.released, lock.held)
	}
}

func TestServiceSkipsJobWhenLockHeld(t *testing.T) {
	job := &testJob{name: "tracking-sync"}
	registry := NewRegistry()
	registry.Register("@every 30m", job)
	lock := newFakeLock()
	lock.held["tracking-sync"] = true
	metrics := newRecordingMetrics()

	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock, Metrics: metrics})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
	if len(metrics.failure) != 0 || len(metrics.success) != 0 {
		t.Fatalf("expected no metrics for skipped job")
	}
}

func TestServiceLockErrorCountsAsFailure(t *testing.T) {
	job := &testJob{name: "retention"}
	registry := NewRegistry()
	registry.Register("@daily", job)
	lock := newFakeLock()
	lock.err = errors.New("redis down")
	metrics := newRecordingMetrics()

	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock, Metrics: metrics})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	if job.runs != 0 {
		t.Fatalf("expected job not to run without a lock")
	}
	if metrics.failure["retention"] != 1 {
		t.Fatalf("expected failure metric, got %v", metrics.failure)
	}
}

func TestServiceRunRejectsInvalidSpec(t *testing.T) {
	registry := NewRegistry()
	registry.Register("not a schedule", &testJob{name: "broken"})
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: newFakeLock()})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("expected invalid spec error")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	registry := NewRegistry()
	registry.Register("@every 1h", &testJob{name: "idle"})
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: newFakeLock()})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: newFakeLock()}); err == nil {
		t.Fatalf("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestRegistryIgnoresIncompleteEntries(t *testing.T) {
	registry := NewRegistry()
	registry.Register("", &testJob{name: "no-spec"})
	registry.Register("@daily", nil)
	registry.Register("@daily", &testJob{name: "ok"})

	entries := registry.Entries()
	if len(entries) != 1 || entries[0].Job.Name() != "ok" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	entries[0].Spec = "mutated"
	if registry.Entries()[0].Spec != "@daily" {
		t.Fatalf("entries should be a copy")
	}
}
