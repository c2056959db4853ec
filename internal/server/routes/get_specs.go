package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/graph"
)

func GetSpecsHandler(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing query parameter q"})
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Graph

	specs, err := graph.SearchSpecs(ctx, store, query)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if specs == nil {
		specs = []graph.Node{}
	}

	return c.JSON(http.StatusOK, map[string]any{"specs": specs})
}
