package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jfuertes/subman-backend/internal/subscriptions"
	"github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type fakeLock struct {
	acquired  bool
	acquires  int
	releases  int
	acquireFn func() (bool, error)
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	if f.acquireFn != nil {
		return f.acquireFn()
	}
	return f.acquired, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

type fakeJob struct {
	name string
	runs int
	err  error
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Run(ctx context.Context) error {
	f.runs++
	return f.err
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &fakeJob{name: "noop"}
	lock := &fakeLock{acquired: false}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no job runs, got %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("lock released without being held")
	}
}

func TestRunCycleRunsAllJobsAndReleasesLock(t *testing.T) {
	first := &fakeJob{name: "first"}
	second := &fakeJob{name: "second", err: errors.New("boom")}
	third := &fakeJob{name: "third"}
	lock := &fakeLock{acquired: true}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	// A failing job never blocks the rest of the cycle.
	for _, job := range []*fakeJob{first, second, third} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.releases != 1 {
		t.Fatalf("expected one lock release, got %d", lock.releases)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	lock := &fakeLock{acquired: true}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Lock:     lock,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if lock.acquires < 2 {
		t.Fatalf("expected repeated cycles, got %d acquires", lock.acquires)
	}
}

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockMutualExclusion(t *testing.T) {
	store := newFakeRedisStore()

	first, err := NewRedisLock(store, "sm:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, err := NewRedisLock(store, "sm:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseIsOwnerChecked(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "sm:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	// Another instance stole the key after our TTL lapsed.
	store.values["sm:lock:test"] = uuid.NewString()

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, exists := store.values["sm:lock:test"]; !exists {
		t.Fatal("release deleted a lock it no longer owned")
	}
}

type fakeEvaluator struct {
	result subscriptions.EvaluationResult
	err    error
	gotNow time.Time
}

func (f *fakeEvaluator) EvaluateExpirations(ctx context.Context, clientID *uuid.UUID, now time.Time) (subscriptions.EvaluationResult, error) {
	f.gotNow = now
	if clientID != nil {
		return subscriptions.EvaluationResult{}, errors.New("scheduled scan must cover all tenants")
	}
	return f.result, f.err
}

func TestExpirationJobRunsFullScan(t *testing.T) {
	now := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	evaluator := &fakeEvaluator{result: subscriptions.EvaluationResult{Checked: 3, Renewed: 2, Expired: 1}}

	job, err := NewExpirationJob(ExpirationJobParams{
		Service: evaluator,
		Logger:  testLogger(),
		Now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewExpirationJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !evaluator.gotNow.Equal(now) {
		t.Fatalf("expected injected now, got %v", evaluator.gotNow)
	}

	evaluator.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

type fakeDispatcher struct {
	result webhooks.DispatchResult
	err    error
	runs   int
}

func (f *fakeDispatcher) Run(ctx context.Context, now time.Time) (webhooks.DispatchResult, error) {
	f.runs++
	return f.result, f.err
}

func TestDispatchJobPropagatesErrors(t *testing.T) {
	dispatcher := &fakeDispatcher{result: webhooks.DispatchResult{Processed: 2, Succeeded: 2}}
	job, err := NewDispatchJob(DispatchJobParams{
		Dispatcher: dispatcher,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("NewDispatchJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.runs != 1 {
		t.Fatalf("dispatcher ran %d times", dispatcher.runs)
	}

	dispatcher.err = errors.New("network down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}
