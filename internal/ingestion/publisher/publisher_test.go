package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

type memLedger struct {
	entries map[string]Entry
}

func newMemLedger() *memLedger { return &memLedger{entries: map[string]Entry{}} }

func (l *memLedger) FindByIdempotencyKey(_ context.Context, key string) (*Entry, error) {
	for _, e := range l.entries {
		if e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, nil
}

func (l *memLedger) Upsert(_ context.Context, e Entry) error {
	l.entries[e.DocumentID] = e
	return nil
}

func (l *memLedger) MarkDeleted(_ context.Context, id string) (bool, error) {
	e, ok := l.entries[id]
	if !ok {
		return false, nil
	}
	e.Deleted = true
	l.entries[id] = e
	return true, nil
}

type memProducer struct {
	events []kafka.Event
	err    error
}

func (p *memProducer) Publish(_ context.Context, events ...kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

type memTracker struct {
	events []analytics.DocumentEvent
}

func (t *memTracker) Track(_ string, event any) {
	t.events = append(t.events, event.(analytics.DocumentEvent))
}

func newPublisher(l Ledger, p kafka.Publisher, t Tracker) *Publisher {
	pub := New(l, p, t, 4)
	pub.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return pub
}

func TestIngestRoutesByDocumentID(t *testing.T) {
	ledger, producer, tracker := newMemLedger(), &memProducer{}, &memTracker{}
	pub := newPublisher(ledger, producer, tracker)

	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{
		ID:     "doc-7",
		Fields: map[string][]string{"category": {"books"}},
	})
	require.NoError(t, err)
	want := shard.Assign("doc-7", 4)
	assert.Equal(t, ingestion.IngestResponse{DocumentID: "doc-7", Status: StatusPending, ShardID: want}, *resp)

	require.Len(t, producer.events, 1)
	doc := producer.events[0].Value.(proto.Document)
	assert.Equal(t, "doc-7", doc.ID)
	require.NotNil(t, doc.ShardID)
	assert.Equal(t, int32(want), *doc.ShardID)
	assert.Equal(t, int64(1700000000000), doc.CreatedAt)
	assert.Equal(t, []string{"books"}, doc.Fields["category"])

	assert.Equal(t, Entry{DocumentID: "doc-7", ShardID: want, FieldCount: 1, Status: StatusPending}, ledger.entries["doc-7"])
	require.Len(t, tracker.events, 1)
	assert.Equal(t, analytics.EventDocument, tracker.events[0].Type)
	assert.Equal(t, 1, tracker.events[0].Fields)
}

func TestIngestGeneratesIDs(t *testing.T) {
	producer := &memProducer{}
	pub := newPublisher(newMemLedger(), producer, nil)
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{Fields: map[string][]string{"a": {"1"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DocumentID)
	assert.Equal(t, shard.Assign(resp.DocumentID, 4), resp.ShardID)
}

func TestIngestIsIdempotent(t *testing.T) {
	ledger, producer := newMemLedger(), &memProducer{}
	pub := newPublisher(ledger, producer, nil)
	req := &ingestion.IngestRequest{IdempotencyKey: "k1", Fields: map[string][]string{"a": {"1"}}}

	first, err := pub.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := pub.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, producer.events, 1)
	assert.Len(t, ledger.entries, 1)
}

func TestIngestReportsQueueFailure(t *testing.T) {
	pub := newPublisher(newMemLedger(), &memProducer{err: errors.New("broker down")}, nil)
	_, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{ID: "d", Fields: map[string][]string{"a": {"1"}}})
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
}

func TestDelete(t *testing.T) {
	ledger, producer := newMemLedger(), &memProducer{}
	pub := newPublisher(ledger, producer, nil)

	_, err := pub.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrFieldNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))

	_, err = pub.Ingest(context.Background(), &ingestion.IngestRequest{ID: "d", Fields: map[string][]string{"a": {"1"}}})
	require.NoError(t, err)
	resp, err := pub.Delete(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, resp.Status)
	assert.True(t, ledger.entries["d"].Deleted)

	require.Len(t, producer.events, 2)
	doc := producer.events[1].Value.(proto.Document)
	assert.True(t, doc.Deleted)
	assert.Equal(t, producer.events[0].Key, producer.events[1].Key)
}
