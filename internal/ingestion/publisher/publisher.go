// Package publisher records accepted writes in the document ledger and
// publishes them to the document-ingest topic, keyed by the owning shard so
// each shard sees its documents in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

const (
	StatusPending = "PENDING"
	StatusDeleted = "DELETED"
)

// Entry is one row of the document ledger.
type Entry struct {
	DocumentID     string
	ShardID        int
	FieldCount     int
	IdempotencyKey string
	Deleted        bool
	Status         string
}

// Ledger stores document write state. PostgresLedger is the production
// implementation.
type Ledger interface {
	// FindByIdempotencyKey returns the entry created with key, or nil.
	FindByIdempotencyKey(ctx context.Context, key string) (*Entry, error)
	// Upsert records e, replacing an earlier write of the same document.
	// A key already bound to another document fails with ErrConflict.
	Upsert(ctx context.Context, e Entry) error
	// MarkDeleted flags id as deleted and reports whether it existed.
	MarkDeleted(ctx context.Context, id string) (bool, error)
}

// Tracker receives analytics events; *analytics.Collector implements it.
type Tracker interface {
	Track(key string, event any)
}

type Publisher struct {
	ledger      Ledger
	producer    kafka.Publisher
	tracker     Tracker
	totalShards int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Publisher for totalShards shards. tracker may be nil.
func New(ledger Ledger, producer kafka.Publisher, tracker Tracker, totalShards int) *Publisher {
	return &Publisher{
		ledger:      ledger,
		producer:    producer,
		tracker:     tracker,
		totalShards: totalShards,
		now:         time.Now,
		logger:      slog.Default().With("component", "document-publisher"),
	}
}

// Ingest records the document and queues it for indexing. A repeated
// idempotency key returns the original response without writing again.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.ledger.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.DocumentID,
			)
			return &ingestion.IngestResponse{
				DocumentID: existing.DocumentID,
				Status:     existing.Status,
				ShardID:    existing.ShardID,
			}, nil
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	shardID := shard.Assign(id, p.totalShards)
	err := p.ledger.Upsert(ctx, Entry{
		DocumentID:     id,
		ShardID:        shardID,
		FieldCount:     len(req.Fields),
		IdempotencyKey: req.IdempotencyKey,
		Status:         StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("recording document %s: %w", id, err)
	}

	doc := proto.Document{
		ID:        id,
		ShardID:   shardRef(shardID),
		Fields:    req.Fields,
		CreatedAt: p.now().UnixMilli(),
	}
	if err := p.publish(ctx, doc); err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{DocumentID: id, Status: StatusPending, ShardID: shardID}, nil
}

// Delete removes id from the index. Unknown ids fail with a 404.
func (p *Publisher) Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error) {
	found, err := p.ledger.MarkDeleted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deleting document %s: %w", id, err)
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "document %q does not exist", id)
	}
	shardID := shard.Assign(id, p.totalShards)
	doc := proto.Document{
		ID:        id,
		ShardID:   shardRef(shardID),
		CreatedAt: p.now().UnixMilli(),
		Deleted:   true,
	}
	if err := p.publish(ctx, doc); err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{DocumentID: id, Status: StatusDeleted, ShardID: shardID}, nil
}

func (p *Publisher) publish(ctx context.Context, doc proto.Document) error {
	shardID := int(*doc.ShardID)
	err := p.producer.Publish(ctx, kafka.Event{Key: strconv.Itoa(shardID), Value: doc})
	if err != nil {
		p.logger.Error("failed to publish document, ledger entry stays PENDING",
			"doc_id", doc.ID,
			"shard_id", shardID,
			"error", err,
		)
		return fmt.Errorf("queueing document %s: %w: %w", doc.ID, apperrors.ErrShardUnavailable, err)
	}
	if p.tracker != nil {
		p.tracker.Track(doc.ID, analytics.DocumentEvent{
			Type:       analytics.EventDocument,
			DocumentID: doc.ID,
			ShardID:    shardID,
			Deleted:    doc.Deleted,
			Fields:     len(doc.Fields),
			Timestamp:  p.now().UTC(),
		})
	}
	return nil
}

func shardRef(id int) *int32 {
	v := int32(id)
	return &v
}
