package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/logger"
)

func DeleteDocumentHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document id"})
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Evidence

	if err := store.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	logger.Info("[Server] Document deleted", "document_id", id)
	return c.NoContent(http.StatusNoContent)
}
