package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradegraph/backend/internal/util"
	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/extract"
	"github.com/tradegraph/backend/pkg/logger"
)

// Coordinator drives documents through extraction: claim, extract under a
// deadline, validate, persist atomically, then hand the document id to the
// graph stage. Each document is a bulkhead; one failure never aborts the
// batch or poisons another document.
type Coordinator struct {
	store     evidence.Store
	extractor extract.Client

	batchSize    int
	pollInterval time.Duration
	timeout      time.Duration
	retries      int

	// onCompleted receives ids of documents that reached completed. Nil
	// disables the hand-off (used by tests).
	onCompleted func(ctx context.Context, documentID int64) error
}

type Params struct {
	Store     evidence.Store
	Extractor extract.Client

	BatchSize    int
	PollInterval time.Duration
	Timeout      time.Duration

	// Retries bounds attempts per extraction request. Cancellation and
	// deadline errors are never retried.
	Retries int

	OnCompleted func(ctx context.Context, documentID int64) error
}

// Stats summarizes one processed batch.
type Stats struct {
	Claimed   int
	Completed int
	Failed    int
	Entities  int
	Relations int
}

func New(params Params) *Coordinator {
	if params.BatchSize <= 0 {
		params.BatchSize = 10
	}
	if params.PollInterval <= 0 {
		params.PollInterval = 5 * time.Second
	}
	if params.Timeout <= 0 {
		params.Timeout = 2 * time.Minute
	}
	if params.Retries <= 0 {
		params.Retries = 2
	}
	return &Coordinator{
		store:        params.Store,
		extractor:    params.Extractor,
		batchSize:    params.BatchSize,
		pollInterval: params.PollInterval,
		timeout:      params.Timeout,
		retries:      params.Retries,
		onCompleted:  params.OnCompleted,
	}
}

// Run polls for pending documents until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	logger.Info("[Coordinator] Polling for pending documents",
		"batch_size", c.batchSize,
		"interval", c.pollInterval,
	)

	for {
		stats, err := c.ProcessBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("[Coordinator] Batch failed", "err", err)
		} else if stats.Claimed > 0 {
			logger.Info("[Coordinator] Batch done",
				"claimed", stats.Claimed,
				"completed", stats.Completed,
				"failed", stats.Failed,
				"entities", stats.Entities,
				"relations", stats.Relations,
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims and processes up to one batch of pending documents.
func (c *Coordinator) ProcessBatch(ctx context.Context) (Stats, error) {
	var stats Stats

	docs, err := c.store.ListPending(ctx, c.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list pending: %w", err)
	}

	for _, doc := range docs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		claimed, err := c.store.MarkProcessing(ctx, doc.ID)
		if err != nil {
			return stats, fmt.Errorf("claim document %d: %w", doc.ID, err)
		}
		if !claimed {
			// Another worker got there first.
			continue
		}
		stats.Claimed++

		result, err := c.processDocument(ctx, doc)
		if err != nil {
			stats.Failed++
			c.failDocument(ctx, doc.ID, err)
			continue
		}

		stats.Completed++
		stats.Entities += len(result.Entities)
		stats.Relations += len(result.Relations)

		if c.onCompleted != nil {
			if err := c.onCompleted(ctx, doc.ID); err != nil {
				// The document stays completed but unmaterialized; record
				// the gap so the error log surfaces it.
				logger.Error("[Coordinator] Failed to hand off completed document",
					"document_id", doc.ID, "err", err)
				docID := doc.ID
				recErr := c.store.RecordError(ctx, &docID, evidence.StageMaterialization,
					fmt.Sprintf("graph hand-off: %v", err))
				if recErr != nil {
					logger.Warn("[Coordinator] Failed to record hand-off error",
						"document_id", doc.ID, "err", recErr)
				}
			}
		}
	}

	return stats, nil
}

// processDocument runs extraction with the configured deadline and persists
// the outcome. A timeout is an extraction failure like any other.
func (c *Coordinator) processDocument(ctx context.Context, doc evidence.Document) (extract.Result, error) {
	extractCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := util.RetryWithContext(extractCtx, c.retries, func(ctx context.Context) (extract.Result, error) {
		return c.extractor.Extract(ctx, doc.RawText)
	})
	if err != nil {
		return extract.Result{}, fmt.Errorf("extract: %w", err)
	}
	if err := extract.ValidateResult(doc.RawText, result); err != nil {
		return extract.Result{}, fmt.Errorf("validate extraction: %w", err)
	}

	entities := make([]evidence.EntityInput, len(result.Entities))
	for i, e := range result.Entities {
		entities[i] = evidence.EntityInput{
			Text:       e.Text,
			Type:       e.Type,
			StartChar:  e.StartChar,
			EndChar:    e.EndChar,
			Confidence: e.Confidence,
		}
	}
	relations := make([]evidence.RelationInput, len(result.Relations))
	for i, r := range result.Relations {
		relations[i] = evidence.RelationInput{
			SourceIndex: r.SourceIndex,
			TargetIndex: r.TargetIndex,
			Type:        r.Type,
			Confidence:  r.Confidence,
			Context:     r.Context,
		}
	}

	if err := c.store.SaveExtraction(ctx, doc.ID, entities, relations); err != nil {
		return extract.Result{}, fmt.Errorf("save extraction: %w", err)
	}

	logger.Info("[Coordinator] Document processed",
		"document_id", doc.ID,
		"entities", len(entities),
		"relations", len(relations),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// failDocument moves the claimed document to failed and records why. Uses a
// fresh context so shutdown does not strand documents in processing.
func (c *Coordinator) failDocument(ctx context.Context, documentID int64, cause error) {
	logger.Error("[Coordinator] Document failed", "document_id", documentID, "err", cause)

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := c.store.MarkFailed(ctx, documentID); err != nil {
		logger.Warn("[Coordinator] Failed to mark document failed",
			"document_id", documentID, "err", err)
	}
	if err := c.store.RecordError(ctx, &documentID, evidence.StageExtraction, cause.Error()); err != nil {
		logger.Warn("[Coordinator] Failed to record processing error",
			"document_id", documentID, "err", err)
	}
}
