package queue

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/tradegraph/backend/internal/util"
	"github.com/tradegraph/backend/pkg/logger"
)

// ExchangeName is the durable topic exchange all scraped content flows
// through. Ingest queues bind with "<topic>.*" so the partition suffix of the
// routing key never changes which queue a message lands in, only its ordering
// bucket.
const ExchangeName = "evidence"

// IngestQueues are the raw-content topics, one per scraper output format.
var IngestQueues = []string{"pdf_urls", "html_content", "forum_text"}

// GraphQueue carries ids of completed documents from the extraction
// coordinator to the graph materializer.
const GraphQueue = "graph_queue"

// Partitions is the number of ordering buckets per topic. Messages from the
// same source domain always map to the same partition.
const Partitions = 4

// TopicForType maps a document type to its ingest topic.
func TopicForType(documentType string) (string, bool) {
	switch documentType {
	case "pdf":
		return "pdf_urls", true
	case "html":
		return "html_content", true
	case "forum":
		return "forum_text", true
	}
	return "", false
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("[Queue] Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the evidence exchange, the ingest queues bound to it,
// the graph queue, and a DLQ plus a TTL-based retry queue for each.
func SetupQueues(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}

	for _, name := range append(append([]string{}, IngestQueues...), GraphQueue) {
		if err := declareWithDLQ(ch, name); err != nil {
			return err
		}
	}

	for _, name := range IngestQueues {
		err := ch.QueueBind(
			name,
			name+".*",
			ExchangeName,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}

	return nil
}

func declareWithDLQ(ch *amqp091.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	dlqName := name + "_dlq"
	_, err = ch.QueueDeclare(
		dlqName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", dlqName, err)
	}

	retryName := name + "_retry"
	_, err = ch.QueueDeclare(
		retryName,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-message-ttl":             int32(10000),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", retryName, err)
	}

	return nil
}

// PublishContent publishes a raw-content message to the evidence exchange
// under "<topic>.<partition>", where the partition is derived from the source
// domain. Scraper output from one site stays ordered relative to itself.
func PublishContent(ch *amqp091.Channel, topic string, sourceURL string, data []byte) error {
	routingKey := fmt.Sprintf("%s.%d", topic, PartitionFor(sourceURL))

	err := ch.Publish(
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}

	return nil
}

// PublishFIFO publishes directly to a named queue via the default exchange.
func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	err := ch.Publish(
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}

	return nil
}

// PartitionFor maps a source URL to its ordering partition by hashing the
// host. URLs that do not parse hash as given, so malformed sources still get
// a stable partition.
func PartitionFor(sourceURL string) int {
	key := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		key = strings.ToLower(u.Host)
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % Partitions)
}
