// Package blender implements the JSON-over-TCP command client for the
// Blender addon. The addon listens on localhost:9876 and executes one
// command at a time on Blender's main thread; this client mirrors that
// model with a single cached connection and one outstanding request.
package blender

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"blender_mcp/logging"
)

// State describes the client's view of the addon connection.
type State int

const (
	// StateDisconnected means no socket is held; the next command dials.
	StateDisconnected State = iota

	// StateConnected means a socket is cached and presumed healthy.
	StateConnected

	// StateDegraded means the last command failed mid-exchange. The socket
	// has been dropped and the next command dials fresh.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// CommandError is returned when the addon reports status "error" for a
// command. The message comes verbatim from the addon.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("blender command %s failed: %s", e.Command, e.Message)
}

// ConnectionError is returned for dial, I/O, and timeout failures. After a
// ConnectionError the cached socket has been invalidated.
type ConnectionError struct {
	Addr   string
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("blender connection to %s %s: %v", e.Addr, e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// request is the wire format the addon expects.
type request struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// response is the wire format the addon sends back.
type response struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client talks to the Blender addon socket. It holds at most one TCP
// connection and serializes commands: the addon executes everything on
// Blender's main thread, so pipelining buys nothing and risks interleaved
// reads.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *logging.Logger

	mu    sync.Mutex
	conn  net.Conn
	state State
}

// NewClient creates a client for the addon at addr. timeout bounds each
// command exchange end to end; the addon itself gives up after 15 seconds,
// so a matching timeout avoids waiting on replies that will never come.
func NewClient(addr string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger.Named("blender"),
		state:   StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the addon if no healthy connection is cached. Commands call
// this implicitly; it is exported so startup can fail fast when Blender is
// required.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil && c.state == StateConnected {
		return nil
	}

	c.dropLocked()

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state = StateDisconnected
		return &ConnectionError{Addr: c.addr, Reason: "dial failed", Err: err}
	}

	c.conn = conn
	c.state = StateConnected
	c.logger.Info("connected to blender addon", zap.String("addr", c.addr))
	return nil
}

// Disconnect closes the cached connection. Safe to call at any time.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	c.state = StateDisconnected
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// SendCommand sends one command to the addon and returns the raw result.
//
// The exchange is strictly sequential: marshal {"type", "params"}, write all
// bytes, then read until the accumulated bytes parse as one complete JSON
// document or the deadline passes. The addon streams large responses in
// chunks with no length prefix, so parse-as-you-go is the only framing.
//
// On timeout or I/O error the connection is dropped and the state moves to
// Degraded; the next command reconnects. There is no automatic retry: a
// timed-out command may still be executing inside Blender, and replaying it
// could apply a mutation twice.
func (c *Client) SendCommand(ctx context.Context, cmdType string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request{Type: cmdType, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", cmdType, err)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.degradeLocked()
		return nil, &ConnectionError{Addr: c.addr, Reason: "set deadline failed", Err: err}
	}

	start := time.Now()
	if _, err := c.conn.Write(payload); err != nil {
		c.degradeLocked()
		return nil, &ConnectionError{Addr: c.addr, Reason: "write failed", Err: err}
	}

	raw, err := c.readResponseLocked()
	if err != nil {
		c.degradeLocked()
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.degradeLocked()
		return nil, &ConnectionError{Addr: c.addr, Reason: "malformed response", Err: err}
	}

	c.logger.Debug("command complete",
		zap.String("command", cmdType),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("status", resp.Status))

	if resp.Status == "error" {
		msg := resp.Message
		if msg == "" {
			msg = "unknown error from blender"
		}
		// An error status is a healthy exchange: the socket stays cached.
		return nil, &CommandError{Command: cmdType, Message: msg}
	}

	return resp.Result, nil
}

// readResponseLocked accumulates socket reads until the buffer parses as a
// complete JSON document. Responses with embedded base64 images can run to
// megabytes across many TCP segments.
func (c *Client) readResponseLocked() (json.RawMessage, error) {
	var buf []byte
	chunk := make([]byte, 8192)

	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if json.Valid(buf) {
				return buf, nil
			}
		}
		if err != nil {
			reason := "read failed"
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if len(buf) > 0 {
					reason = "timed out with partial response"
				} else {
					reason = "timed out waiting for response"
				}
			}
			return nil, &ConnectionError{Addr: c.addr, Reason: reason, Err: err}
		}
	}
}

func (c *Client) degradeLocked() {
	c.dropLocked()
	c.state = StateDegraded
	c.logger.Warn("blender connection degraded", zap.String("addr", c.addr))
}
