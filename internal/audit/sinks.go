package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"access-gate/internal/util"
)

type messageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes events as JSON keyed by contact hash, so one
// contact's events stay ordered within a partition.
type KafkaSink struct {
	producer messageProducer
	topic    string
}

func NewKafkaSink(producer messageProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := event.ContactHash
	if key == "" {
		key = event.ID
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(key), value, map[string]string{
		"event_type": string(event.Type),
		"site":       event.Site,
	})
}

type documentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

type ElasticsearchSink struct {
	indexer documentIndexer
	index   string
}

func NewElasticsearchSink(indexer documentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, event *Event) error {
	return s.indexer.IndexDocument(ctx, s.index, event.ID, event)
}

type batchInserter interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

const clickhouseEventsTable = `
    CREATE TABLE IF NOT EXISTS gate_events (
        event_id     String,
        event_type   LowCardinality(String),
        site         LowCardinality(String),
        contact_hash String,
        contact_type LowCardinality(String),
        is_admin     Bool,
        outcome      String,
        browser      LowCardinality(String),
        os           LowCardinality(String),
        occurred_at  DateTime64(3, 'UTC')
    ) ENGINE = MergeTree
    ORDER BY (site, event_type, occurred_at)`

// ClickHouseSink feeds the visit analytics table.
type ClickHouseSink struct {
	conn batchInserter
}

// NewClickHouseSink creates the events table if it is missing.
func NewClickHouseSink(ctx context.Context, conn batchInserter) (*ClickHouseSink, error) {
	if err := conn.Exec(ctx, clickhouseEventsTable); err != nil {
		return nil, fmt.Errorf("create gate_events table: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Write(ctx context.Context, event *Event) error {
	return s.conn.BatchInsert(ctx, "INSERT INTO gate_events", [][]interface{}{{
		event.ID,
		string(event.Type),
		event.Site,
		event.ContactHash,
		event.ContactType,
		event.IsAdmin,
		event.Outcome,
		event.Browser,
		event.OS,
		event.OccurredAt,
	}})
}

// LogSink writes events to the application log at debug level.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Write(_ context.Context, event *Event) error {
	util.Debug("Audit event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("site", event.Site),
		zap.String("masked_contact", event.MaskedContact),
		zap.String("outcome", event.Outcome))
	return nil
}
