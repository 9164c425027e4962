// Package landscape defines core types shared across subsystems.
package landscape

import "time"

// Location identifies a place by name and street address. Identity for
// matrix indexing is positional, not by name: names need not be unique.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// JobKind selects which analysis pipeline a job runs.
type JobKind string

// Job kinds accepted by the API.
const (
	JobKindPlaces    JobKind = "places"
	JobKindProducts  JobKind = "products"
	JobKindProximity JobKind = "proximity"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// PlacesParams configures a maps listing scrape.
type PlacesParams struct {
	SearchQueries []string `json:"search_queries"`
	Locations     []string `json:"locations"`
	MaxPlaces     int      `json:"max_places"`
	MaxScrolls    int      `json:"max_scrolls"`
	ExtractEmails bool     `json:"extract_emails"`
}

// ProductsParams configures a storefront product scrape.
type ProductsParams struct {
	SearchQuery string `json:"search_query"`
	Location    string `json:"location"`
	MaxStores   int    `json:"max_stores"`
}

// ProximityParams configures a travel-time matrix build plus nearest
// assignment. When Matrix is supplied the directions API is not called.
type ProximityParams struct {
	Origins        []Location `json:"origins"`
	Destinations   []Location `json:"destinations"`
	MaxTimeSeconds float64    `json:"max_time_seconds"`
	Matrix         *Matrix    `json:"matrix,omitempty"`
}

// JobParameters captures per-job configuration requested by the client.
// Exactly one of the kind-specific blocks is set, matching Kind.
type JobParameters struct {
	Kind      JobKind           `json:"kind"`
	Places    *PlacesParams     `json:"places,omitempty"`
	Products  *ProductsParams   `json:"products,omitempty"`
	Proximity *ProximityParams  `json:"proximity,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Job represents the metadata persisted for each submitted analysis.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks per-job row and failure stats.
type JobCounters struct {
	RowsCollected int `json:"rows_collected"`
	PairsSkipped  int `json:"pairs_skipped"`
	Failures      int `json:"failures"`
}

// PlaceRecord is one scraped maps listing.
type PlaceRecord struct {
	SearchQuery string   `json:"search_query"`
	Location    string   `json:"location"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stars       *float64 `json:"stars,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	Address     string   `json:"address,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Emails      string   `json:"emails,omitempty"`
	Website     string   `json:"website,omitempty"`
	PriceRange  string   `json:"price_range,omitempty"`
}

// ProductRecord is one scraped storefront product row.
type ProductRecord struct {
	StoreName   string   `json:"store_name"`
	Category    string   `json:"category"`
	ProductName string   `json:"product_name"`
	Price       float64  `json:"price"`
	RatingPct   *float64 `json:"rating_pct,omitempty"`
	ReviewCount int      `json:"review_count"`
	Calories    *int     `json:"calories,omitempty"`
}

// ProximityResult bundles the matrix, the structured assignments, and the
// rendered report blocks for a proximity job.
type ProximityResult struct {
	Matrix      *Matrix      `json:"matrix"`
	Assignments []Assignment `json:"assignments"`
	Reports     []string     `json:"reports"`
}

// ArtifactRecord is persisted for each exported artifact of a job.
type ArtifactRecord struct {
	JobID       string    `json:"job_id"`
	Kind        JobKind   `json:"kind"`
	Name        string    `json:"name"`
	RowCount    int       `json:"row_count"`
	ContentHash string    `json:"content_hash"`
	BlobURI     string    `json:"blob_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job       Job              `json:"job"`
	Artifacts []ArtifactRecord `json:"artifacts"`
	Proximity *ProximityResult `json:"proximity,omitempty"`
}
