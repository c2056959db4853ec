package middleware

import (
	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/graph"
)

// App carries the shared clients every handler needs.
type App struct {
	Evidence evidence.Store
	Graph    graph.Store
	Queue    *amqp.Channel
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(evidenceStore evidence.Store, graphStore graph.Store, queue *amqp.Channel) echo.MiddlewareFunc {
	app := &App{
		Evidence: evidenceStore,
		Graph:    graphStore,
		Queue:    queue,
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
