package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"github.com/tradegraph/backend/internal/queue"
	"github.com/tradegraph/backend/internal/storage"
	"github.com/tradegraph/backend/internal/util"
	"github.com/tradegraph/backend/pkg/coordinator"
	evidencepgx "github.com/tradegraph/backend/pkg/evidence/pgx"
	"github.com/tradegraph/backend/pkg/extract"
	eoll "github.com/tradegraph/backend/pkg/extract/ollama"
	eoai "github.com/tradegraph/backend/pkg/extract/openai"
	"github.com/tradegraph/backend/pkg/graph"
	graphpgx "github.com/tradegraph/backend/pkg/graph/pgx"
	"github.com/tradegraph/backend/pkg/leaselock"
	"github.com/tradegraph/backend/pkg/logger"
	"github.com/tradegraph/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Extraction client
	adapter := util.GetEnvString("AI_ADAPTER", "openai")
	var extractor extract.Client

	switch adapter {
	case "ollama":
		client, err := eoll.New(eoll.Params{
			Model:                 util.GetEnv("AI_EXTRACT_MODEL"),
			BaseURL:               util.GetEnvString("AI_URL", ""),
			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		extractor = client
	default:
		client, err := eoai.New(eoai.Params{
			Model:   util.GetEnv("AI_EXTRACT_MODEL"),
			BaseURL: util.GetEnvString("AI_URL", ""),
			APIKey:  util.GetEnv("AI_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create OpenAI client", "err", err)
		}
		extractor = client
	}

	// Database
	databaseURL := util.GetEnv("DATABASE_URL")
	if err := storage.Migrate(databaseURL, util.GetEnvString("MIGRATIONS_PATH", "file://migrations")); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	evidenceStore := evidencepgx.NewEvidenceStore(pgConn)
	graphStore := graphpgx.NewGraphStore(pgConn)
	locks := leaselock.New(pgConn)

	// RabbitMQ
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	materializer := graph.NewMaterializer(graph.MaterializerParams{
		Evidence:      evidenceStore,
		Graph:         graphStore,
		MinConfidence: util.GetEnvFloat("GRAPH_MIN_CONFIDENCE", 0),
	})

	coord := coordinator.New(coordinator.Params{
		Store:        evidenceStore,
		Extractor:    extractor,
		BatchSize:    util.GetEnvInt("EXTRACT_BATCH_SIZE", 10),
		PollInterval: util.GetEnvDuration("EXTRACT_POLL_INTERVAL", "5s"),
		Timeout:      util.GetEnvDuration("EXTRACT_TIMEOUT", "2m"),
		Retries:      util.GetEnvInt("EXTRACT_RETRIES", 2),
		OnCompleted: func(ctx context.Context, documentID int64) error {
			data, err := json.Marshal(queue.GraphJobMsg{DocumentID: documentID})
			if err != nil {
				return err
			}
			return util.RetryErr(3, func() error {
				return queue.PublishFIFO(ch, queue.GraphQueue, data)
			})
		},
	})

	group, groupCtx := errgroup.WithContext(ctx)

	// Ingest consumers, one per topic.
	for _, topic := range queue.IngestQueues {
		group.Go(func() error {
			return consumeLoop(groupCtx, conn, topic, func(ctx context.Context, body string) error {
				return queue.ProcessContentMessage(ctx, evidenceStore, topic, body)
			})
		})
	}

	// Extraction coordinator, single holder per deployment. Hold reacquires
	// after a lost lease so the loop survives lease churn.
	group.Go(func() error {
		err := locks.Hold(groupCtx, "extraction_coordinator", leaselock.Options{Wait: true}, coord.Run)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Graph materializer, fed by the coordinator through graph_queue.
	group.Go(func() error {
		return locks.Hold(groupCtx, "graph_materializer", leaselock.Options{Wait: true}, func(ctx context.Context) error {
			err := consumeLoop(ctx, conn, queue.GraphQueue, func(ctx context.Context, body string) error {
				return queue.ProcessGraphMessage(ctx, materializer, body)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	})

	logger.Info("Listening for messages")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker failed", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

// consumeLoop consumes one queue with prefetch 1 and manual acks. Malformed
// messages go straight to the DLQ; anything else cycles through the retry
// queue until the retry budget runs out.
func consumeLoop(
	ctx context.Context,
	conn *amqp.Connection,
	queueName string,
	handle func(ctx context.Context, body string) error,
) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		queueName,
		queueName+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping consumer", "queue", queueName)
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queueName)
				return nil
			}

			err := handle(ctx, string(msg.Body))
			if err == nil {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "queue", queueName, "err", err)
				}
				continue
			}

			logger.Error("Error processing message", "queue", queueName, "err", err)
			handleProcessingError(ch, msg, queueName, errors.Is(err, queue.ErrMalformed))
		}
	}
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string, malformed bool) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// Malformed messages can never succeed; exhausted retries give up too.
	if malformed || retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
