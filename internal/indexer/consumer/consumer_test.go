package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

type fakeLedger struct {
	statuses map[string]string
}

func (l *fakeLedger) RecordStatus(_ context.Context, docID, status string) error {
	l.statuses[docID] = status
	return nil
}

func setup(t *testing.T) (*indexer.Engine, *fakeLedger, kafka.MessageHandler) {
	t.Helper()
	s, err := schema.New([]schema.Field{
		{Name: "category", Type: schema.TypeString, Indexed: true},
		{Name: "price", Type: schema.TypeInt, Indexed: true},
	})
	require.NoError(t, err)
	engine, err := indexer.NewEngine(config.ShardNodeConfig{ShardIDs: []int{0}, TotalShards: 2}, s, nil)
	require.NoError(t, err)
	ledger := &fakeLedger{statuses: map[string]string{}}
	return engine, ledger, HandleMessage(engine, ledger)
}

func encode(t *testing.T, doc proto.Document) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestHandleMessageAppliesLocalDocuments(t *testing.T) {
	engine, ledger, handle := setup(t)
	zero, one := int32(0), int32(1)

	require.NoError(t, handle(context.Background(), nil, encode(t, proto.Document{
		ID: "a", ShardID: &zero, Fields: map[string][]string{"category": {"books"}},
	})))
	require.NoError(t, handle(context.Background(), nil, encode(t, proto.Document{
		ID: "b", ShardID: &one, Fields: map[string][]string{"category": {"music"}},
	})))

	s, ok := engine.Shard(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Store.DocCount())
	assert.Equal(t, map[string]string{"a": "INDEXED"}, ledger.statuses)

	require.NoError(t, handle(context.Background(), nil, encode(t, proto.Document{ID: "a", ShardID: &zero, Deleted: true})))
	assert.Zero(t, s.Store.DocCount())
	assert.Equal(t, "DELETED", ledger.statuses["a"])
}

func TestHandleMessageSkipsBadDocuments(t *testing.T) {
	_, ledger, handle := setup(t)
	zero := int32(0)

	err := handle(context.Background(), nil, []byte("{"))
	assert.True(t, errors.Is(err, kafka.ErrSkip))

	err = handle(context.Background(), nil, encode(t, proto.Document{
		ID: "c", ShardID: &zero, Fields: map[string][]string{"price": {"cheap"}},
	}))
	assert.True(t, errors.Is(err, kafka.ErrSkip))
	assert.Equal(t, "FAILED", ledger.statuses["c"])
}
