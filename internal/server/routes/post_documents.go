package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tradegraph/backend/internal/queue"
	"github.com/tradegraph/backend/internal/server/middleware"
	"github.com/tradegraph/backend/pkg/logger"
)

type submitDocumentRequest struct {
	SourceURL    string            `json:"source_url" validate:"required"`
	DocumentType string            `json:"document_type" validate:"required,oneof=pdf html forum"`
	Content      string            `json:"content" validate:"required"`
	IsScanned    bool              `json:"is_scanned"`
	Metadata     map[string]string `json:"metadata"`
}

// SubmitDocumentHandler accepts scraped content and publishes it on the
// ingest topic for its document type. The response means accepted for
// ingestion, not ingested; deduplication happens downstream in the consumer.
func SubmitDocumentHandler(c echo.Context) error {
	data := new(submitDocumentRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	topic, ok := queue.TopicForType(data.DocumentType)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown document type"})
	}

	msg := queue.RawContentMsg{
		SourceURL:    data.SourceURL,
		DocumentType: data.DocumentType,
		Content:      data.Content,
		IsScanned:    data.IsScanned,
		Metadata:     data.Metadata,
		ScrapedAt:    time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishContent(ch, topic, data.SourceURL, body); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	logger.Info("[Server] Document submitted", "topic", topic, "source_url", data.SourceURL)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
