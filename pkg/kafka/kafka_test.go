package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "facet-analytics")
	require.NoError(t, p.Publish(context.Background(),
		Event{Key: "a", Value: map[string]int{"n": 1}},
		Event{Key: "b", Value: []string{"x"}},
	))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "a", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.JSONEq(t, `["x"]`, string(w.msgs[1].Value))

	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, w.msgs, 2)
}

func TestProducerPublishErrors(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "bad", Value: make(chan int)}))

	boom := errors.New("broker down")
	p = newProducer(&fakeWriter{err: boom}, "t")
	assert.ErrorIs(t, p.Publish(context.Background(), Event{Key: "k", Value: 1}), boom)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerCommitsHandledAndSkippedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		cancel: cancel,
		pending: []kafka.Message{
			{Offset: 1, Value: []byte(`{"id":"1"}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"id":"fail"}`)},
			{Offset: 4, Value: []byte(`{"id":"4"}`)},
		},
	}
	var seen []string
	c := newConsumer(r, "document-ingest", func(_ context.Context, _ []byte, value []byte) error {
		doc, err := DecodeJSON[struct {
			ID string `json:"id"`
		}](value)
		if err != nil {
			return err
		}
		if doc.ID == "fail" {
			return errors.New("index unavailable")
		}
		seen = append(seen, doc.ID)
		return nil
	})
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"1", "4"}, seen)
	assert.Equal(t, []int64{1, 2, 4}, r.committed)
	assert.True(t, r.closed)
}

func TestDecodeJSONWrapsSkip(t *testing.T) {
	_, err := DecodeJSON[map[string]any]([]byte("{"))
	assert.ErrorIs(t, err, ErrSkip)
}
