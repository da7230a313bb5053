package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fdg312/adreport/internal/storage"
	"github.com/fdg312/adreport/internal/storage/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// countingStore counts GetJob calls and can block them until released.
type countingStore struct {
	storage.ImportJobsStorage
	gets    atomic.Int32
	release chan struct{}
}

func (s *countingStore) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	s.gets.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.ImportJobsStorage.GetJob(ctx, id)
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, id string) (*storage.ImportJob, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(ctx context.Context, job *storage.ImportJob) error {
	return errors.New("cache down")
}

func (failingCache) Delete(ctx context.Context, id string) error {
	return errors.New("cache down")
}

// staleReadStore takes its GetJob snapshot, then holds it until released.
type staleReadStore struct {
	storage.ImportJobsStorage
	read    chan struct{}
	release chan struct{}
}

func (s *staleReadStore) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	job, err := s.ImportJobsStorage.GetJob(ctx, id)
	close(s.read)
	<-s.release
	return job, err
}

// rejectingStore fails UpdateJob for jobs entering the given status.
type rejectingStore struct {
	storage.ImportJobsStorage
	status string
}

func (s *rejectingStore) UpdateJob(ctx context.Context, job *storage.ImportJob) error {
	if job.Status == s.status {
		return errors.New("write timeout")
	}
	return s.ImportJobsStorage.UpdateJob(ctx, job)
}

// setFailCache rejects Set once failSet is on.
type setFailCache struct {
	*MemoryCache
	failSet bool
}

func (c *setFailCache) Set(ctx context.Context, job *storage.ImportJob) error {
	if c.failSet {
		return errors.New("cache down")
	}
	return c.MemoryCache.Set(ctx, job)
}

func newJob(t *testing.T, tr *Tracker, id string) *storage.ImportJob {
	t.Helper()
	job := &storage.ImportJob{ID: id, Filename: "data.csv"}
	require.NoError(t, tr.Create(context.Background(), job))
	return job
}

func TestCreateSetsPendingState(t *testing.T) {
	tr := NewTracker(memory.New(), NewMemoryCache(time.Hour), quietLogger())
	job := newJob(t, tr, "job-1")

	got, err := tr.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.NotNil(t, got.Errors)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, job.CreatedAt, got.CreatedAt)
}

func TestTransitionRules(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{storage.JobPending, storage.JobProcessing, true},
		{storage.JobPending, storage.JobFailed, true},
		{storage.JobPending, storage.JobCompleted, false},
		{storage.JobProcessing, storage.JobCompleted, true},
		{storage.JobProcessing, storage.JobFailed, true},
		{storage.JobProcessing, storage.JobPending, false},
		{storage.JobCompleted, storage.JobFailed, false},
		{storage.JobFailed, storage.JobProcessing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionToCompleted(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), NewMemoryCache(time.Hour), quietLogger())
	job := newJob(t, tr, "job-1")

	require.NoError(t, tr.Transition(ctx, job, storage.JobProcessing))
	job.Progress = 40
	job.ProcessedRecords = 4
	require.NoError(t, tr.Update(ctx, job))
	require.NoError(t, tr.Transition(ctx, job, storage.JobCompleted))

	got, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 4, got.ProcessedRecords)
	require.NotNil(t, got.FinishedAt)

	err = tr.Transition(ctx, job, storage.JobFailed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, tr.Update(ctx, job), ErrJobFinished)
}

func TestUpdateRejectsBadProgress(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), nil, quietLogger())
	job := newJob(t, tr, "job-1")
	require.NoError(t, tr.Transition(ctx, job, storage.JobProcessing))

	job.Progress = 101
	assert.Error(t, tr.Update(ctx, job))
}

func TestGetUnknownJob(t *testing.T) {
	tr := NewTracker(memory.New(), NewMemoryCache(time.Hour), quietLogger())

	_, err := tr.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetFallsBackToStoreWhenCacheFails(t *testing.T) {
	tr := NewTracker(memory.New(), failingCache{}, quietLogger())
	newJob(t, tr, "job-1")

	got, err := tr.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
}

func TestGetRefillsCacheAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ImportJobsStorage: memory.New()}
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	tr := NewTracker(store, cache, quietLogger())
	job := newJob(t, tr, "job-1")
	require.NoError(t, tr.Transition(ctx, job, storage.JobFailed))

	_, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int32(0), store.gets.Load())

	now = now.Add(2 * time.Minute)
	_, err = tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.gets.Load())

	_, err = tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestGetDoesNotCacheRunningSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ImportJobsStorage: memory.New()}
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	tr := NewTracker(store, cache, quietLogger())
	job := newJob(t, tr, "job-1")
	require.NoError(t, tr.Transition(ctx, job, storage.JobProcessing))

	now = now.Add(2 * time.Minute)
	for i := 0; i < 2; i++ {
		got, err := tr.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, storage.JobProcessing, got.Status)
	}
	assert.Equal(t, int32(2), store.gets.Load())

	_, ok, err := cache.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlowReadCannotOverwriteTerminalState(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cache := NewMemoryCache(time.Hour)

	seed := NewTracker(mem, nil, quietLogger())
	job := newJob(t, seed, "job-1")
	require.NoError(t, seed.Transition(ctx, job, storage.JobProcessing))

	store := &staleReadStore{ImportJobsStorage: mem, read: make(chan struct{}), release: make(chan struct{})}
	tr := NewTracker(store, cache, quietLogger())

	done := make(chan *storage.ImportJob)
	go func() {
		got, err := tr.Get(ctx, "job-1")
		assert.NoError(t, err)
		done <- got
	}()

	<-store.read
	require.NoError(t, tr.Transition(ctx, job, storage.JobCompleted))
	close(store.release)

	stale := <-done
	assert.Equal(t, storage.JobProcessing, stale.Status)

	got, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobCompleted, got.Status)

	durable, err := mem.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, durable.Status, got.Status)
}

func TestFailedMirrorInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	cache := &setFailCache{MemoryCache: NewMemoryCache(time.Hour)}
	tr := NewTracker(memory.New(), cache, quietLogger())

	job := newJob(t, tr, "job-1")
	require.NoError(t, tr.Transition(ctx, job, storage.JobProcessing))

	cache.failSet = true
	require.NoError(t, tr.Transition(ctx, job, storage.JobCompleted))

	_, ok, err := cache.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobCompleted, got.Status)
}

func TestFailedTransitionLeavesJobUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &rejectingStore{ImportJobsStorage: memory.New(), status: storage.JobCompleted}
	tr := NewTracker(store, NewMemoryCache(time.Hour), quietLogger())

	job := newJob(t, tr, "job-1")
	require.NoError(t, tr.Transition(ctx, job, storage.JobProcessing))

	require.Error(t, tr.Transition(ctx, job, storage.JobCompleted))
	assert.Equal(t, storage.JobProcessing, job.Status)
	assert.Nil(t, job.FinishedAt)

	require.NoError(t, tr.Transition(ctx, job, storage.JobFailed))
	got, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobFailed, got.Status)
}

func TestConcurrentMissesShareOneRead(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	require.NoError(t, mem.CreateJob(ctx, &storage.ImportJob{ID: "job-1", Status: storage.JobPending, CreatedAt: time.Now()}))

	store := &countingStore{ImportJobsStorage: mem, release: make(chan struct{})}
	tr := NewTracker(store, nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tr.Get(ctx, "job-1")
			assert.NoError(t, err)
			assert.Equal(t, "job-1", got.ID)
		}()
	}

	require.Eventually(t, func() bool { return store.gets.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.LessOrEqual(t, store.gets.Load(), int32(5))
	assert.GreaterOrEqual(t, store.gets.Load(), int32(1))
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), NewMemoryCache(time.Hour), quietLogger())
	newJob(t, tr, "job-1")

	a, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	a.Errors = append(a.Errors, "mutated")

	b, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, b.Errors)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "adreport:import_job:abc", redisKey("abc"))
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://localhost:6379/notanumber")
	assert.Error(t, err)
}
