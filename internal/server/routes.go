package server

import (
	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Part routes
	apiRoutes.GET("/parts/:id", routes.GetPartHandler)
	apiRoutes.GET("/parts/:id/chain", routes.GetPartChainHandler)

	// Spec routes
	apiRoutes.GET("/specs", routes.GetSpecsHandler)

	// Tribal knowledge view
	apiRoutes.GET("/tribal-knowledge", routes.GetTribalKnowledgeHandler)

	// Document routes
	apiRoutes.POST("/documents", routes.SubmitDocumentHandler)
	apiRoutes.GET("/documents/pending", routes.GetPendingDocumentsHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler)
	apiRoutes.POST("/documents/:id/retry", routes.RetryDocumentHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler)
}
