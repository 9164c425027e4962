// Package worker implements the analysis job execution loop.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/compscout/compscout/internal/export"
	"github.com/compscout/compscout/internal/landscape"
	"github.com/compscout/compscout/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Worker consumes queue items and executes the analysis pipelines.
type Worker struct {
	queue          landscape.Queue
	jobStore       landscape.JobStore
	blobStore      landscape.BlobStore
	publisher      landscape.Publisher
	hasher         landscape.Hasher
	clock          landscape.Clock
	placeScraper   landscape.PlaceScraper
	productScraper landscape.ProductScraper
	travelProvider landscape.TravelTimeProvider
	cfg            Config
	logger         *zap.Logger
}

// New constructs a Worker.
func New(
	queue landscape.Queue,
	jobStore landscape.JobStore,
	blobStore landscape.BlobStore,
	publisher landscape.Publisher,
	hasher landscape.Hasher,
	clock landscape.Clock,
	placeScraper landscape.PlaceScraper,
	productScraper landscape.ProductScraper,
	travelProvider landscape.TravelTimeProvider,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/csv; charset=utf-8"
	}
	metrics.Init()
	return &Worker{
		queue:          queue,
		jobStore:       jobStore,
		blobStore:      blobStore,
		publisher:      publisher,
		hasher:         hasher,
		clock:          clock,
		placeScraper:   placeScraper,
		productScraper: productScraper,
		travelProvider: travelProvider,
		cfg:            cfg,
		logger:         logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Params.Kind)))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item landscape.QueueItem) {
	counters := landscape.JobCounters{}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	started := w.clock.Now()

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, landscape.JobStatusRunning, "", counters); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	var err error
	switch item.Params.Kind {
	case landscape.JobKindPlaces:
		err = w.runPlaces(ctx, item, &counters)
	case landscape.JobKindProducts:
		err = w.runProducts(ctx, item, &counters)
	case landscape.JobKindProximity:
		err = w.runProximity(ctx, item, &counters)
	default:
		err = fmt.Errorf("unknown job kind %q", item.Params.Kind)
	}

	status, errText := w.deriveFinalStatus(ctx, err)
	if err != nil {
		counters.Failures++
		w.logger.Error("job failed",
			zap.String("job_id", item.JobID),
			zap.String("kind", string(item.Params.Kind)),
			zap.Error(err),
		)
	}

	kind := string(item.Params.Kind)
	metrics.ObserveJob(kind, string(status))
	metrics.ObserveRows(kind, counters.RowsCollected)
	metrics.ObserveScrapeDuration(kind, w.clock.Now().Sub(started))

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.publishCompletion(ctx, item, status, counters)
}

func (w *Worker) runPlaces(ctx context.Context, item landscape.QueueItem, counters *landscape.JobCounters) error {
	if w.placeScraper == nil {
		return fmt.Errorf("no place scraper configured")
	}
	if item.Params.Places == nil {
		return fmt.Errorf("%w: places parameters are required", landscape.ErrInvalidArgument)
	}

	records, err := w.placeScraper.ScrapePlaces(ctx, *item.Params.Places)
	if err != nil {
		return fmt.Errorf("scrape places: %w", err)
	}
	counters.RowsCollected = len(records)

	doc, err := export.PlacesCSV(records)
	if err != nil {
		return fmt.Errorf("render places csv: %w", err)
	}
	return w.storeArtifact(ctx, item, doc, len(records))
}

func (w *Worker) runProducts(ctx context.Context, item landscape.QueueItem, counters *landscape.JobCounters) error {
	if w.productScraper == nil {
		return fmt.Errorf("no product scraper configured")
	}
	if item.Params.Products == nil {
		return fmt.Errorf("%w: products parameters are required", landscape.ErrInvalidArgument)
	}

	records, err := w.productScraper.ScrapeProducts(ctx, *item.Params.Products)
	if err != nil {
		return fmt.Errorf("scrape products: %w", err)
	}
	counters.RowsCollected = len(records)

	doc, err := export.ProductsCSV(records)
	if err != nil {
		return fmt.Errorf("render products csv: %w", err)
	}
	return w.storeArtifact(ctx, item, doc, len(records))
}

func (w *Worker) runProximity(ctx context.Context, item landscape.QueueItem, counters *landscape.JobCounters) error {
	params := item.Params.Proximity
	if params == nil {
		return fmt.Errorf("%w: proximity parameters are required", landscape.ErrInvalidArgument)
	}

	matrix := params.Matrix
	if matrix == nil {
		if w.travelProvider == nil {
			return fmt.Errorf("no travel time provider configured")
		}
		var err error
		matrix, err = w.travelProvider.TravelTimes(ctx, params.Origins, params.Destinations)
		if err != nil {
			return fmt.Errorf("build travel matrix: %w", err)
		}
	}

	assignments, err := landscape.ClosestLocations(matrix, params.Origins, params.Destinations, params.MaxTimeSeconds)
	if err != nil {
		return fmt.Errorf("compute assignments: %w", err)
	}

	counters.RowsCollected = len(assignments)
	counters.PairsSkipped = countUnreachable(matrix)

	result := landscape.ProximityResult{
		Matrix:      matrix,
		Assignments: assignments,
		Reports:     landscape.RenderReports(assignments, params.Origins, params.Destinations),
	}
	if err := w.jobStore.SaveProximityResult(ctx, item.JobID, result); err != nil {
		return fmt.Errorf("save proximity result: %w", err)
	}
	return nil
}

func countUnreachable(m *landscape.Matrix) int {
	skipped := 0
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if !m.At(i, j).Valid {
				skipped++
			}
		}
	}
	return skipped
}

func (w *Worker) buildBlobPath(kind landscape.JobKind, jobID string) string {
	name := export.ArtifactName(kind, jobID, w.clock.Now())
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (w *Worker) storeArtifact(ctx context.Context, item landscape.QueueItem, doc []byte, rows int) error {
	hash, err := w.hasher.Hash(doc)
	if err != nil {
		return fmt.Errorf("hash artifact: %w", err)
	}

	blobPath := w.buildBlobPath(item.Params.Kind, item.JobID)
	uri, err := w.blobStore.PutObject(ctx, blobPath, w.cfg.ContentType, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	artifact := landscape.ArtifactRecord{
		JobID:       item.JobID,
		Kind:        item.Params.Kind,
		Name:        blobPath,
		RowCount:    rows,
		ContentHash: hash,
		BlobURI:     uri,
		CreatedAt:   w.clock.Now(),
	}
	if err := w.jobStore.RecordArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}

	w.logger.Info("artifact stored",
		zap.String("job_id", item.JobID),
		zap.String("blob_uri", uri),
		zap.String("hash", hash),
		zap.Int("rows", rows),
	)
	return nil
}

func (w *Worker) publishCompletion(ctx context.Context, item landscape.QueueItem, status landscape.JobStatus, counters landscape.JobCounters) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":         item.JobID,
		"kind":           string(item.Params.Kind),
		"status":         string(status),
		"rows_collected": counters.RowsCollected,
		"pairs_skipped":  counters.PairsSkipped,
		"timestamp":      w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("publish completion failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Info("job completion published",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
	)
}

func (w *Worker) deriveFinalStatus(ctx context.Context, err error) (landscape.JobStatus, string) {
	switch {
	case ctx.Err() != nil:
		return landscape.JobStatusCanceled, "canceled"
	case err != nil:
		return landscape.JobStatusFailed, err.Error()
	default:
		return landscape.JobStatusSucceeded, ""
	}
}
