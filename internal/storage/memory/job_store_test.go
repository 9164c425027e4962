package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compscout/compscout/internal/landscape"
)

func newJob(id string) landscape.Job {
	return landscape.Job{
		ID:        id,
		Status:    landscape.JobStatusQueued,
		Submitted: time.Now().UTC(),
		Parameters: landscape.JobParameters{
			Kind: landscape.JobKindPlaces,
			Places: &landscape.PlacesParams{
				SearchQueries: []string{"tacos"},
			},
		},
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))
	require.Error(t, store.CreateJob(ctx, newJob("job-1")), "duplicate IDs are rejected")

	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", landscape.JobStatusRunning, "", landscape.JobCounters{}))
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, landscape.JobStatusRunning, job.Status)
	require.NotNil(t, job.Started)
	assert.Nil(t, job.Finished)

	counters := landscape.JobCounters{RowsCollected: 12, Failures: 1}
	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", landscape.JobStatusSucceeded, "", counters))
	job, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, landscape.JobStatusSucceeded, job.Status)
	assert.Equal(t, counters, job.Counters)
	require.NotNil(t, job.Finished)
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	_, err := store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	err = store.UpdateJobStatus(ctx, "missing", landscape.JobStatusRunning, "", landscape.JobCounters{})
	assert.ErrorIs(t, err, ErrJobNotFound)
	err = store.SaveProximityResult(ctx, "missing", landscape.ProximityResult{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStoreArtifacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-2")))

	artifact := landscape.ArtifactRecord{
		JobID:       "job-2",
		Kind:        landscape.JobKindPlaces,
		Name:        "places/export.csv",
		RowCount:    4,
		ContentHash: "abc123",
		BlobURI:     "memory://places/export.csv",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.RecordArtifact(ctx, artifact))

	got, err := store.ListArtifacts(ctx, "job-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, artifact, got[0])

	empty, err := store.ListArtifacts(ctx, "job-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJobStoreProximityResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-4")))

	_, ok, err := store.GetProximityResult(ctx, "job-4")
	require.NoError(t, err)
	assert.False(t, ok)

	result := landscape.ProximityResult{
		Assignments: []landscape.Assignment{{OriginIndex: 1, DestinationIndex: 0, TravelSeconds: 300}},
		Reports:     []string{"Origin Name: B\nOrigin Address: b\nDestination Name: A\nDestination Address: a\n"},
	}
	require.NoError(t, store.SaveProximityResult(ctx, "job-4", result))

	got, ok, err := store.GetProximityResult(ctx, "job-4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result, got)
}
