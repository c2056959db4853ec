package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/logger"
)

// RetryDocumentHandler is the operator-facing retry: it resets a failed
// document back to pending so the next coordinator poll picks it up. Only
// failed documents are eligible; anything in flight or completed is left
// alone.
func RetryDocumentHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document id"})
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Evidence

	reset, err := store.ResetFailed(ctx, id)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if !reset {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Document is not in failed status"})
	}

	logger.Info("[Server] Document queued for retry", "document_id", id)
	return c.JSON(http.StatusOK, map[string]any{"document_id": id, "status": "pending"})
}
