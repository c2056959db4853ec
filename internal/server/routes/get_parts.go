package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/graph"
)

func GetPartHandler(c echo.Context) error {
	partID := c.Param("id")
	if partID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing part id"})
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Graph

	details, err := graph.LookupPart(ctx, store, partID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Part not found"})
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, details)
}

func GetPartChainHandler(c echo.Context) error {
	partID := c.Param("id")
	if partID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing part id"})
	}

	maxDepth := 10
	if raw := c.QueryParam("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid depth"})
		}
		maxDepth = parsed
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Graph

	chain, err := graph.ReplacementChain(ctx, store, partID, maxDepth)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Part not found"})
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, chain)
}
