package landscape

import (
	"context"
	"io"
	"time"
)

// JobStore persists job, artifact, and proximity result metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	RecordArtifact(ctx context.Context, artifact ArtifactRecord) error
	SaveProximityResult(ctx context.Context, jobID string, result ProximityResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListArtifacts(ctx context.Context, jobID string) ([]ArtifactRecord, error)
	GetProximityResult(ctx context.Context, jobID string) (ProximityResult, bool, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// TravelTimeProvider builds a travel-time matrix between every
// origin-destination pair.
type TravelTimeProvider interface {
	TravelTimes(ctx context.Context, origins, destinations []Location) (*Matrix, error)
}

// PlaceScraper collects maps listings for search queries and locations.
type PlaceScraper interface {
	ScrapePlaces(ctx context.Context, params PlacesParams) ([]PlaceRecord, error)
}

// ProductScraper collects storefront product rows for a query and location.
type ProductScraper interface {
	ScrapeProducts(ctx context.Context, params ProductsParams) ([]ProductRecord, error)
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}
