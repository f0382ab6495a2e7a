package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/core"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
)

// ErrClientClosed is returned by calls made after Close
var ErrClientClosed = errors.New("client is closed")

// ClientConfig holds configuration for the stream client
type ClientConfig struct {
	ChannelID          string
	MaxMessageSize     int
	DefaultTimeout     time.Duration
	MaxPendingRequests int
	AllowedDirectories []string
	Logger             *zap.Logger
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ChannelID:          manifest.ContactsChannel,
		MaxMessageSize:     core.DefaultMaxMessageSize,
		DefaultTimeout:     30 * time.Second,
		MaxPendingRequests: 1000,
	}
}

// Client sends requests over one stream connection. Any number of calls may
// be in flight; a single reader goroutine hands each response to the caller
// waiting for it.
type Client struct {
	socketPath string
	config     ClientConfig
	conn       net.Conn
	framing    *core.MessageFraming
	tracker    *ResponseTracker
	logger     *zap.Logger

	writeMu    sync.Mutex
	closed     atomic.Bool
	closeOnce  sync.Once
	readerDone chan struct{}
}

// Dial connects to the server at socketPath
func Dial(ctx context.Context, socketPath string, config ...ClientConfig) (*Client, error) {
	cfg := DefaultClientConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ChannelID == "" {
		cfg.ChannelID = manifest.ContactsChannel
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	validator := core.NewSecurityValidator(cfg.AllowedDirectories...)
	if err := validator.ValidateSocketPath(socketPath); err != nil {
		return nil, fmt.Errorf("invalid socket path: %w", err)
	}
	if err := validator.ValidateChannelID(cfg.ChannelID); err != nil {
		return nil, fmt.Errorf("invalid channel: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}

	c := &Client{
		socketPath: socketPath,
		config:     cfg,
		conn:       conn,
		framing:    core.NewMessageFraming(cfg.MaxMessageSize),
		tracker: NewResponseTracker(TrackerConfig{
			MaxPendingRequests: cfg.MaxPendingRequests,
			DefaultTimeout:     cfg.DefaultTimeout,
		}),
		logger:     logger.Named("client"),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.readerDone)
	for {
		data, err := c.framing.ReadMessage(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("connection lost", zap.Error(err))
			}
			c.tracker.CancelAll(fmt.Sprintf("connection closed: %v", err))
			return
		}

		var resp models.Response
		if err := resp.FromJSON(data); err != nil {
			c.logger.Warn("discarding undecodable response", zap.Error(err))
			continue
		}
		if resp.RequestID == "" {
			c.logger.Warn("server rejected a frame", zap.Any("error", resp.Error))
			continue
		}
		if !c.tracker.HandleResponse(&resp) {
			c.logger.Debug("response for unknown request", zap.String("request", resp.RequestID))
		}
	}
}

// Send writes req and waits for its response. The wait ends at the earliest
// of the request timeout, the client default and the ctx deadline.
func (c *Client) Send(ctx context.Context, req *models.Request) (*models.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	timeout := req.TimeoutDuration()
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if req.Timeout == nil {
		secs := timeout.Seconds()
		req.Timeout = &secs
	}

	done, err := c.tracker.Track(req.ID, timeout)
	if err != nil {
		return nil, err
	}

	data, err := req.ToJSON()
	if err != nil {
		c.tracker.Cancel(req.ID, "encode failed")
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	c.writeMu.Lock()
	err = c.framing.WriteMessage(c.conn, data)
	c.writeMu.Unlock()
	if err != nil {
		c.tracker.Cancel(req.ID, "send failed")
		return nil, err
	}

	select {
	case outcome := <-done:
		return outcome.Response, outcome.Err
	case <-ctx.Done():
		c.tracker.Cancel(req.ID, "context done")
		return nil, ctx.Err()
	}
}

// Call invokes method on the client's channel. An unsuccessful response is
// returned as a *models.JSONRPCError.
func (c *Client) Call(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	resp, err := c.Send(ctx, models.NewRequest(c.config.ChannelID, method, args, nil))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error == nil {
			return nil, models.NewFailure("request failed")
		}
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "ping", nil)
	return err
}

// Manifest fetches and parses the manifest the server validates against
func (c *Client) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	result, err := c.Call(ctx, "manifest", nil)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode manifest: %w", err)
	}
	return manifest.ParseJSON(data)
}

// PendingCount returns the number of requests awaiting a response
func (c *Client) PendingCount() int {
	return c.tracker.PendingCount()
}

// SocketPath returns the server socket path
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Close closes the connection and fails every pending call
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
		<-c.readerDone
		c.tracker.Shutdown()
	})
	return err
}
