package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/evidence"
)

func GetPendingDocumentsHandler(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = parsed
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Evidence

	docs, err := store.ListPending(ctx, limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []evidence.Document{}
	}

	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

func GetDocumentHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document id"})
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Evidence

	doc, err := store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	entities, err := store.GetEntities(ctx, id)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	relationships, err := store.GetRelationships(ctx, id)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	if entities == nil {
		entities = []evidence.Entity{}
	}
	if relationships == nil {
		relationships = []evidence.Relationship{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"document":      doc,
		"entities":      entities,
		"relationships": relationships,
	})
}
