package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

type echoParams struct {
	Text string `json:"text"`
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Say", func(ctx context.Context, req json.RawMessage) (any, error) {
		var p echoParams
		if err := json.Unmarshal(req, &p); err != nil {
			return nil, err
		}
		return echoParams{Text: "echo " + p.Text}, nil
	})
	s.Register("Echo.Fail", func(ctx context.Context, req json.RawMessage) (any, error) {
		return nil, apperrors.ProtocolMismatchf("bucket %q missing", "0-10")
	})
	s.Register("Echo.Deadline", func(ctx context.Context, req json.RawMessage) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	s.Register("Echo.Slow", func(ctx context.Context, req json.RawMessage) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return "late", nil
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return s, ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	s, addr := startServer(t)
	assert.Equal(t, 4, s.MethodCount())

	c := NewClient(addr)
	defer c.Close()

	var out echoParams
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoParams{Text: "hi"}, &out))
	assert.Equal(t, "echo hi", out.Text)

	// the connection is reused for a second call
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoParams{Text: "again"}, &out))
	assert.Equal(t, "echo again", out.Text)
}

func TestCallMapsErrorCodes(t *testing.T) {
	_, addr := startServer(t)
	c := NewClient(addr)
	defer c.Close()

	err := c.Call(context.Background(), "Echo.Fail", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch))
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "protocol_mismatch", remote.Code)

	err = c.Call(context.Background(), "Echo.Nope", nil, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestCallPropagatesDeadline(t *testing.T) {
	_, addr := startServer(t)
	c := NewClient(addr)
	defer c.Close()

	var has bool
	require.NoError(t, c.Call(context.Background(), "Echo.Deadline", nil, &has))
	assert.False(t, has)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Call(ctx, "Echo.Deadline", nil, &has))
	assert.True(t, has)
}

func TestCallTimeoutRedials(t *testing.T) {
	_, addr := startServer(t)
	c := NewClient(addr)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "Echo.Slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var out echoParams
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoParams{Text: "back"}, &out))
	assert.Equal(t, "echo back", out.Text)
}

func TestCallCancelledBeforeSend(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Call(ctx, "Echo.Say", nil, nil), context.Canceled)
}
