package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator"

	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/logger"
)

// ErrMalformed marks a message that can never succeed. The worker sends these
// straight to the DLQ instead of cycling them through the retry queue.
var ErrMalformed = errors.New("malformed message")

var validate = validator.New()

// ProcessContentMessage ingests one raw-content message into the evidence
// store. Ingestion is idempotent, so redelivered messages resolve to the
// existing document instead of creating a duplicate.
func ProcessContentMessage(
	ctx context.Context,
	store evidence.Store,
	topic string,
	msg string,
) error {
	data := new(RawContentMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		recordIngestError(ctx, store, topic, fmt.Sprintf("unmarshal: %v", err))
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(data); err != nil {
		recordIngestError(ctx, store, topic, fmt.Sprintf("validate: %v", err))
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id, created, err := store.Ingest(ctx, evidence.IngestParams{
		SourceURL: data.SourceURL,
		Type:      evidence.DocumentType(data.DocumentType),
		RawText:   data.Content,
		IsScanned: data.IsScanned,
		Metadata:  data.Metadata,
		ScrapedAt: data.ScrapedAt,
	})
	if err != nil {
		return fmt.Errorf("ingest document: %w", err)
	}

	if !created {
		logger.Info("[Ingest] Duplicate content, document already known",
			"topic", topic,
			"document_id", id,
			"source_url", data.SourceURL,
		)
		return nil
	}

	logger.Info("[Ingest] Document ingested",
		"topic", topic,
		"document_id", id,
		"type", data.DocumentType,
		"source_url", data.SourceURL,
	)
	return nil
}

func recordIngestError(ctx context.Context, store evidence.Store, topic, message string) {
	err := store.RecordError(ctx, nil, evidence.StageIngestion, fmt.Sprintf("%s: %s", topic, message))
	if err != nil {
		logger.Warn("[Ingest] Failed to record processing error", "topic", topic, "err", err)
	}
}
