package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Unwrap maps the wire code back to the platform error it names.
func (e *RemoteError) Unwrap() error {
	return errorFor(e.Code)
}

// Client is a lightweight JSON-over-TCP RPC client. It dials lazily and
// redials after a broken or abandoned call.
type Client struct {
	addr    string
	dialer  net.Dialer
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// NewClient returns a client for addr without connecting.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	c := NewClient(addr)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr is the server address.
func (c *Client) Addr() string { return c.addr }

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.encoder, c.decoder = nil, nil, nil
}

// Call invokes the named RPC method with params and decodes the response
// into result. The context deadline is sent to the server and applied to the
// connection; a cancelled call drops the connection so a late reply cannot be
// read by the next caller. Call is safe for concurrent use.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.nextID.Add(1), 10),
		Params: raw,
	}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		req.DeadlineMs = deadline.UnixMilli()
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.reset()
		return fmt.Errorf("setting deadline: %w", err)
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		// unblocks the pending read
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.encoder.Encode(req); err != nil {
		c.reset()
		return c.wrap(ctx, "sending request", err)
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		c.reset()
		return c.wrap(ctx, "reading response", err)
	}
	if resp.ID != req.ID {
		c.reset()
		return fmt.Errorf("rpc %s: response id %q does not match request %q", method, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

func (c *Client) wrap(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", what, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", what, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.encoder, c.decoder = nil, nil, nil
	return err
}
