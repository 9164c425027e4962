package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compscout/compscout/internal/config"
	"github.com/compscout/compscout/internal/dispatcher"
	"github.com/compscout/compscout/internal/landscape"
	queuememory "github.com/compscout/compscout/internal/queue/memory"
	storememory "github.com/compscout/compscout/internal/storage/memory"
)

type stubIDGen struct{ id string }

func (g *stubIDGen) NewID() (string, error) { return g.id, nil }

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

type stubTravelProvider struct {
	matrix *landscape.Matrix
	err    error
}

func (p *stubTravelProvider) TravelTimes(context.Context, []landscape.Location, []landscape.Location) (*landscape.Matrix, error) {
	return p.matrix, p.err
}

func testConfig() config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestServer(t *testing.T, provider landscape.TravelTimeProvider) (*Server, *storememory.JobStore, *queuememory.Queue) {
	t.Helper()
	jobStore := storememory.NewJobStore()
	queue := queuememory.NewQueue(8)
	t.Cleanup(queue.Close)

	srv := NewServer(
		jobStore,
		dispatcher.New(queue, nil),
		provider,
		&stubIDGen{id: "job-test"},
		&stubClock{now: time.Unix(1700000000, 0).UTC()},
		testConfig(),
		nil,
	)
	return srv, jobStore, queue
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitJobEnqueuesAndPersists(t *testing.T) {
	t.Parallel()
	srv, jobStore, queue := newTestServer(t, nil)

	params := landscape.JobParameters{
		Kind: landscape.JobKindPlaces,
		Places: &landscape.PlacesParams{
			SearchQueries: []string{"tacos"},
			Locations:     []string{"Austin, TX"},
		},
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", params)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-test", resp["job_id"])

	job, err := jobStore.GetJob(context.Background(), "job-test")
	require.NoError(t, err)
	assert.Equal(t, landscape.JobStatusQueued, job.Status)

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-test", item.JobID)
	assert.Equal(t, landscape.JobKindPlaces, item.Params.Kind)
}

func TestSubmitJobValidation(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		params landscape.JobParameters
	}{
		{"unknown kind", landscape.JobParameters{Kind: "bogus"}},
		{"places without queries", landscape.JobParameters{Kind: landscape.JobKindPlaces, Places: &landscape.PlacesParams{}}},
		{"products without location", landscape.JobParameters{
			Kind:     landscape.JobKindProducts,
			Products: &landscape.ProductsParams{SearchQuery: "burritos"},
		}},
		{"proximity with zero threshold", landscape.JobParameters{
			Kind: landscape.JobKindProximity,
			Proximity: &landscape.ProximityParams{
				Origins:      []landscape.Location{{Name: "A", Address: "a"}},
				Destinations: []landscape.Location{{Name: "X", Address: "x"}},
			},
		}},
		{"proximity without destinations", landscape.JobParameters{
			Kind: landscape.JobKindProximity,
			Proximity: &landscape.ProximityParams{
				Origins:        []landscape.Location{{Name: "A", Address: "a"}},
				MaxTimeSeconds: 600,
			},
		}},
	}
	for _, tc := range tests {
		rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", tc.params)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}

func TestJobStatusAndCancel(t *testing.T) {
	t.Parallel()
	srv, jobStore, _ := newTestServer(t, nil)

	params := landscape.JobParameters{
		Kind:   landscape.JobKindPlaces,
		Places: &landscape.PlacesParams{SearchQueries: []string{"tacos"}},
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", params)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/jobs/job-test/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/v1/jobs/job-test/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := jobStore.GetJob(context.Background(), "job-test")
	require.NoError(t, err)
	assert.Equal(t, landscape.JobStatusCanceled, job.Status)

	rec = doRequest(t, srv, http.MethodGet, "/v1/jobs/absent/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobResultIncludesProximity(t *testing.T) {
	t.Parallel()
	srv, jobStore, _ := newTestServer(t, nil)

	params := landscape.JobParameters{
		Kind: landscape.JobKindProximity,
		Proximity: &landscape.ProximityParams{
			Origins:        []landscape.Location{{Name: "A", Address: "a"}},
			Destinations:   []landscape.Location{{Name: "X", Address: "x"}},
			MaxTimeSeconds: 600,
		},
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", params)
	require.Equal(t, http.StatusAccepted, rec.Code)

	saved := landscape.ProximityResult{
		Assignments: []landscape.Assignment{{OriginIndex: 0, DestinationIndex: 0, TravelSeconds: 120}},
		Reports:     []string{"Origin Name: A\nOrigin Address: a\nDestination Name: X\nDestination Address: x\n"},
	}
	require.NoError(t, jobStore.SaveProximityResult(context.Background(), "job-test", saved))

	rec = doRequest(t, srv, http.MethodGet, "/v1/jobs/job-test/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result landscape.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Proximity)
	assert.Equal(t, saved.Assignments, result.Proximity.Assignments)
	assert.Equal(t, saved.Reports, result.Proximity.Reports)
}

func TestComputeAssignmentsWithInlineMatrix(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)

	matrix := landscape.NewMatrix([]string{"Depot A", "Depot B"}, []string{"Shop X"})
	matrix.Set(0, 0, 500)
	matrix.Set(1, 0, 300)

	req := assignmentsRequest{
		Origins: []landscape.Location{
			{Name: "Depot A", Address: "1 First St"},
			{Name: "Depot B", Address: "2 Second St"},
		},
		Destinations:   []landscape.Location{{Name: "Shop X", Address: "10 Main St"}},
		MaxTimeSeconds: 600,
		Matrix:         matrix,
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/assignments", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result landscape.ProximityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, landscape.Assignment{OriginIndex: 1, DestinationIndex: 0, TravelSeconds: 300}, result.Assignments[0])
	require.Len(t, result.Reports, 1)
	assert.Equal(t,
		"Origin Name: Depot B\nOrigin Address: 2 Second St\nDestination Name: Shop X\nDestination Address: 10 Main St\n",
		result.Reports[0])
}

func TestComputeAssignmentsInvalidThreshold(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)

	matrix := landscape.NewMatrix([]string{"A"}, []string{"X"})
	matrix.Set(0, 0, 100)
	req := assignmentsRequest{
		Origins:      []landscape.Location{{Name: "A", Address: "a"}},
		Destinations: []landscape.Location{{Name: "X", Address: "x"}},
		Matrix:       matrix,
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/assignments", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeAssignmentsWithoutMatrixOrProvider(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)

	req := assignmentsRequest{
		Origins:        []landscape.Location{{Name: "A", Address: "a"}},
		Destinations:   []landscape.Location{{Name: "X", Address: "x"}},
		MaxTimeSeconds: 600,
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/assignments", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeAssignmentsUsesProvider(t *testing.T) {
	t.Parallel()

	matrix := landscape.NewMatrix([]string{"A"}, []string{"X"})
	matrix.Set(0, 0, 240)
	srv, _, _ := newTestServer(t, &stubTravelProvider{matrix: matrix})

	req := assignmentsRequest{
		Origins:        []landscape.Location{{Name: "A", Address: "a"}},
		Destinations:   []landscape.Location{{Name: "X", Address: "x"}},
		MaxTimeSeconds: 600,
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/assignments", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result landscape.ProximityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, 240.0, result.Assignments[0].TravelSeconds)
}

func TestComputeAssignmentsProviderFailure(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, &stubTravelProvider{err: errors.New("network down")})

	req := assignmentsRequest{
		Origins:        []landscape.Location{{Name: "A", Address: "a"}},
		Destinations:   []landscape.Location{{Name: "X", Address: "x"}},
		MaxTimeSeconds: 600,
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/assignments", req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"

	queue := queuememory.NewQueue(1)
	t.Cleanup(queue.Close)
	srv := NewServer(
		storememory.NewJobStore(),
		dispatcher.New(queue, nil),
		nil,
		&stubIDGen{id: "job-auth"},
		&stubClock{now: time.Now()},
		cfg,
		nil,
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
