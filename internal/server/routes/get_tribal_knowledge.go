package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/evidence"
)

func GetTribalKnowledgeHandler(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = parsed
	}

	ctx := c.Request().Context()
	store := c.(*middleware.AppContext).App.Evidence

	claims, err := store.ListTribalKnowledge(ctx, limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if claims == nil {
		claims = []evidence.TribalClaim{}
	}

	return c.JSON(http.StatusOK, map[string]any{"claims": claims})
}
