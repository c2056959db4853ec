package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tradegraph/backend/internal/util"
	"github.com/tradegraph/backend/pkg/graph"
	"github.com/tradegraph/backend/pkg/logger"
)

// ProcessGraphMessage folds one completed document into the knowledge graph.
// Materialization is idempotent, so a redelivered job converges to the same
// graph instead of stacking duplicate evidence.
func ProcessGraphMessage(
	ctx context.Context,
	materializer *graph.Materializer,
	msg string,
) error {
	data := new(GraphJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Materialization is retried in-process before the message falls back to
	// the retry queue; most failures here are transient connection errors.
	err := util.RetryErrWithContext(ctx, 2, func(ctx context.Context) error {
		return materializer.Materialize(ctx, data.DocumentID)
	})
	if err != nil {
		return fmt.Errorf("materialize document %d: %w", data.DocumentID, err)
	}

	logger.Info("[Graph] Document materialized", "document_id", data.DocumentID)
	return nil
}
