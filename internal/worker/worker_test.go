package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/compscout/compscout/internal/landscape"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []landscape.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item landscape.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (landscape.QueueItem, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return landscape.QueueItem{}, ctx.Err()
}

type fakeJobStore struct {
	mu        sync.Mutex
	statuses  []landscape.JobStatus
	counters  []landscape.JobCounters
	errTexts  []string
	artifacts []landscape.ArtifactRecord
	proximity map[string]landscape.ProximityResult
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{proximity: make(map[string]landscape.ProximityResult)}
}

func (s *fakeJobStore) CreateJob(context.Context, landscape.Job) error { return nil }

func (s *fakeJobStore) UpdateJobStatus(_ context.Context, _ string, status landscape.JobStatus, errText string, counters landscape.JobCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	s.counters = append(s.counters, counters)
	s.errTexts = append(s.errTexts, errText)
	return nil
}

func (s *fakeJobStore) RecordArtifact(_ context.Context, artifact landscape.ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, artifact)
	return nil
}

func (s *fakeJobStore) SaveProximityResult(_ context.Context, jobID string, result landscape.ProximityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proximity[jobID] = result
	return nil
}

func (s *fakeJobStore) GetJob(context.Context, string) (landscape.Job, error) {
	return landscape.Job{}, errors.New("not implemented")
}

func (s *fakeJobStore) ListArtifacts(context.Context, string) ([]landscape.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]landscape.ArtifactRecord(nil), s.artifacts...), nil
}

func (s *fakeJobStore) GetProximityResult(_ context.Context, jobID string) (landscape.ProximityResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.proximity[jobID]
	return result, ok, nil
}

func (s *fakeJobStore) lastStatus() landscape.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *fakeJobStore) lastCounters() landscape.JobCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.counters) == 0 {
		return landscape.JobCounters{}
	}
	return s.counters[len(s.counters)-1]
}

func (s *fakeJobStore) lastErrText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errTexts) == 0 {
		return ""
	}
	return s.errTexts[len(s.errTexts)-1]
}

type fakeBlobStore struct {
	mu       sync.Mutex
	lastPath string
	lastData []byte
}

func (b *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPath = path
	b.lastData = raw
	return "memory://" + path, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload.(map[string]any))
	return "msg-1", nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type fakeHasher struct{ hash string }

func (h *fakeHasher) Hash([]byte) (string, error) { return h.hash, nil }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakePlaceScraper struct {
	records []landscape.PlaceRecord
	err     error
}

func (s *fakePlaceScraper) ScrapePlaces(context.Context, landscape.PlacesParams) ([]landscape.PlaceRecord, error) {
	return s.records, s.err
}

type fakeProductScraper struct {
	records []landscape.ProductRecord
	err     error
}

func (s *fakeProductScraper) ScrapeProducts(context.Context, landscape.ProductsParams) ([]landscape.ProductRecord, error) {
	return s.records, s.err
}

type fakeTravelProvider struct {
	matrix *landscape.Matrix
	err    error
}

func (p *fakeTravelProvider) TravelTimes(context.Context, []landscape.Location, []landscape.Location) (*landscape.Matrix, error) {
	return p.matrix, p.err
}

func newWorker(
	queue landscape.Queue,
	jobStore *fakeJobStore,
	blobStore *fakeBlobStore,
	publisher *fakePublisher,
	places landscape.PlaceScraper,
	products landscape.ProductScraper,
	travel landscape.TravelTimeProvider,
) *Worker {
	return New(
		queue,
		jobStore,
		blobStore,
		publisher,
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)},
		places,
		products,
		travel,
		Config{BlobPrefix: "artifacts", Topic: "jobs.completed"},
		zap.NewNop(),
	)
}

func TestWorkerPlacesJobSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []landscape.QueueItem{{
		JobID: "job-places",
		Params: landscape.JobParameters{
			Kind:   landscape.JobKindPlaces,
			Places: &landscape.PlacesParams{SearchQueries: []string{"tacos"}, Locations: []string{"Austin, TX"}},
		},
	}}}
	jobStore := newFakeJobStore()
	blobStore := &fakeBlobStore{}
	publisher := &fakePublisher{}
	scraper := &fakePlaceScraper{records: []landscape.PlaceRecord{
		{SearchQuery: "tacos", Location: "Austin, TX", Name: "Taco Haven"},
		{SearchQuery: "tacos", Location: "Austin, TX", Name: "Taqueria Sol"},
	}}

	w := newWorker(queue, jobStore, blobStore, publisher, scraper, nil, nil)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStore.lastStatus() == landscape.JobStatusSucceeded
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 2, jobStore.lastCounters().RowsCollected)
	require.Len(t, jobStore.artifacts, 1)
	artifact := jobStore.artifacts[0]
	require.Equal(t, "job-places", artifact.JobID)
	require.Equal(t, landscape.JobKindPlaces, artifact.Kind)
	require.Equal(t, 2, artifact.RowCount)
	require.Equal(t, "abc123", artifact.ContentHash)
	require.Equal(t, "artifacts/places/20240512T093000Z-job-places.csv", blobStore.lastPath)
	require.True(t, strings.HasPrefix(string(blobStore.lastData), "Search Query,"))

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "succeeded", publisher.messages[0]["status"])
}

func TestWorkerProductsJobFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []landscape.QueueItem{{
		JobID: "job-products",
		Params: landscape.JobParameters{
			Kind:     landscape.JobKindProducts,
			Products: &landscape.ProductsParams{SearchQuery: "burritos", Location: "Austin, TX"},
		},
	}}}
	jobStore := newFakeJobStore()
	publisher := &fakePublisher{}
	scraper := &fakeProductScraper{err: errors.New("storefront unreachable")}

	w := newWorker(queue, jobStore, &fakeBlobStore{}, publisher, nil, scraper, nil)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStore.lastStatus() == landscape.JobStatusFailed
	}, time.Second, 10*time.Millisecond)

	require.Contains(t, jobStore.lastErrText(), "storefront unreachable")
	require.Equal(t, 1, jobStore.lastCounters().Failures)
	require.Empty(t, jobStore.artifacts)

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "failed", publisher.messages[0]["status"])
}

func TestWorkerProximityJobWithProvider(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origins := []landscape.Location{
		{Name: "Depot A", Address: "1 First St"},
		{Name: "Depot B", Address: "2 Second St"},
	}
	destinations := []landscape.Location{
		{Name: "Shop X", Address: "10 Main St"},
		{Name: "Shop Y", Address: "20 Main St"},
	}

	matrix := landscape.NewMatrix(
		[]string{"Depot A", "Depot B"},
		[]string{"Shop X", "Shop Y"},
	)
	matrix.Set(0, 0, 500)
	matrix.Set(1, 0, 300)
	matrix.Set(0, 1, 900)
	// (1,1) left unreachable.

	queue := &fakeQueue{items: []landscape.QueueItem{{
		JobID: "job-prox",
		Params: landscape.JobParameters{
			Kind: landscape.JobKindProximity,
			Proximity: &landscape.ProximityParams{
				Origins:        origins,
				Destinations:   destinations,
				MaxTimeSeconds: 600,
			},
		},
	}}}
	jobStore := newFakeJobStore()
	publisher := &fakePublisher{}
	provider := &fakeTravelProvider{matrix: matrix}

	w := newWorker(queue, jobStore, &fakeBlobStore{}, publisher, nil, nil, provider)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStore.lastStatus() == landscape.JobStatusSucceeded
	}, time.Second, 10*time.Millisecond)

	result, ok, err := jobStore.GetProximityResult(ctx, "job-prox")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, result.Assignments, 1)
	require.Equal(t, landscape.Assignment{OriginIndex: 1, DestinationIndex: 0, TravelSeconds: 300}, result.Assignments[0])
	require.Len(t, result.Reports, 1)
	require.Equal(t,
		"Origin Name: Depot B\nOrigin Address: 2 Second St\nDestination Name: Shop X\nDestination Address: 10 Main St\n",
		result.Reports[0])

	counters := jobStore.lastCounters()
	require.Equal(t, 1, counters.RowsCollected)
	require.Equal(t, 1, counters.PairsSkipped)
}

func TestWorkerProximityJobUsesProvidedMatrix(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origins := []landscape.Location{{Name: "A", Address: "a"}}
	destinations := []landscape.Location{{Name: "X", Address: "x"}}
	matrix := landscape.NewMatrix([]string{"A"}, []string{"X"})
	matrix.Set(0, 0, 120)

	queue := &fakeQueue{items: []landscape.QueueItem{{
		JobID: "job-inline",
		Params: landscape.JobParameters{
			Kind: landscape.JobKindProximity,
			Proximity: &landscape.ProximityParams{
				Origins:        origins,
				Destinations:   destinations,
				MaxTimeSeconds: 600,
				Matrix:         matrix,
			},
		},
	}}}
	jobStore := newFakeJobStore()

	// No provider wired: the inline matrix must be used as-is.
	w := newWorker(queue, jobStore, &fakeBlobStore{}, &fakePublisher{}, nil, nil, nil)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStore.lastStatus() == landscape.JobStatusSucceeded
	}, time.Second, 10*time.Millisecond)

	result, ok, err := jobStore.GetProximityResult(ctx, "job-inline")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, matrix.Equal(result.Matrix), "matrix passes through unchanged")
}

func TestWorkerUnknownKindFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []landscape.QueueItem{{
		JobID:  "job-bad",
		Params: landscape.JobParameters{Kind: landscape.JobKind("bogus")},
	}}}
	jobStore := newFakeJobStore()

	w := newWorker(queue, jobStore, &fakeBlobStore{}, &fakePublisher{}, nil, nil, nil)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStore.lastStatus() == landscape.JobStatusFailed
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, jobStore.lastErrText(), "unknown job kind")
}
