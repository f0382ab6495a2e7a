package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/core"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
)

var (
	ErrAlreadyListening = errors.New("server is already listening")
	ErrNotListening     = errors.New("server is not listening")
)

// Server events
const (
	EventListening     = "listening"
	EventConnection    = "connection"
	EventDisconnection = "disconnection"
	EventRequest       = "request"
	EventResponse      = "response"
	EventError         = "error"
)

// EventHandler receives event data. Handlers run on the emitting goroutine
// and must not block.
type EventHandler func(data interface{})

// ServerConfig defines server configuration options
type ServerConfig struct {
	SocketPath         string
	ChannelID          string
	Version            string
	Workers            int
	QueueSize          int
	MaxConnections     int
	DefaultTimeout     time.Duration
	MaxMessageSize     int
	CleanupOnStart     bool
	CleanupOnShutdown  bool
	ValidateRequests   bool
	AllowedDirectories []string
	Manifest           *manifest.Manifest
	// ValidationFailures maps a method to the failure message reported when
	// its arguments fail manifest validation.
	ValidationFailures map[string]string
	Logger             *zap.Logger
}

// DefaultServerConfig returns the configuration used when none is given
func DefaultServerConfig(socketPath string) *ServerConfig {
	return &ServerConfig{
		SocketPath:        socketPath,
		ChannelID:         manifest.ContactsChannel,
		Version:           "1.0.0",
		Workers:           DefaultWorkers,
		QueueSize:         DefaultQueueSize,
		MaxConnections:    100,
		DefaultTimeout:    30 * time.Second,
		MaxMessageSize:    core.DefaultMaxMessageSize,
		CleanupOnStart:    true,
		CleanupOnShutdown: true,
		ValidateRequests:  true,
	}
}

// ContactsServer answers method calls on a Unix stream socket. Each
// connection carries length-prefixed JSON requests; responses are written
// back on the same connection as handlers finish, in any order.
type ContactsServer struct {
	config    ServerConfig
	registry  *HandlerRegistry
	framing   *core.MessageFraming
	validator *core.SecurityValidator
	logger    *zap.Logger

	mu       sync.Mutex
	listener *net.UnixListener
	executor *Executor
	conns    map[*connection]struct{}
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	eventMu sync.RWMutex
	events  map[string][]EventHandler
}

type connection struct {
	conn    *net.UnixConn
	writeMu sync.Mutex
}

// NewContactsServer creates a server. A nil config selects
// DefaultServerConfig with an empty socket path.
func NewContactsServer(config *ServerConfig) *ContactsServer {
	if config == nil {
		config = DefaultServerConfig("")
	}
	cfg := *config
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

	return &ContactsServer{
		config:    cfg,
		registry:  NewHandlerRegistry(),
		framing:   core.NewMessageFraming(cfg.MaxMessageSize),
		validator: core.NewSecurityValidator(cfg.AllowedDirectories...),
		logger:    logger.Named("server"),
		conns:     make(map[*connection]struct{}),
		events:    make(map[string][]EventHandler),
	}
}

// On registers an event handler for the given event type
func (s *ContactsServer) On(eventType string, handler EventHandler) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	s.events[eventType] = append(s.events[eventType], handler)
}

// Emit calls every handler registered for eventType
func (s *ContactsServer) Emit(eventType string, data interface{}) {
	s.eventMu.RLock()
	handlers := append([]EventHandler(nil), s.events[eventType]...)
	s.eventMu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}

// RegisterHandler registers a request handler for a method of the server's
// channel.
//
// Note: built-in methods (ping, get_info, manifest) cannot be overridden
func (s *ContactsServer) RegisterHandler(method string, handler RequestHandler) error {
	return s.registry.RegisterHandler(method, handler)
}

// Registry exposes the handler registry
func (s *ContactsServer) Registry() *HandlerRegistry {
	return s.registry
}

// SocketPath returns the configured socket path
func (s *ContactsServer) SocketPath() string {
	return s.config.SocketPath
}

// CleanupSocketFile removes the socket file if it exists
func (s *ContactsServer) CleanupSocketFile() error {
	if s.config.SocketPath == "" {
		return nil
	}
	if _, err := os.Stat(s.config.SocketPath); err == nil {
		return os.Remove(s.config.SocketPath)
	}
	return nil
}

// Listen binds the socket and starts the worker pool. Requests are not read
// until Serve is called.
func (s *ContactsServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyListening
	}
	path := s.config.SocketPath
	if err := s.validator.ValidateSocketPath(path); err != nil {
		return fmt.Errorf("invalid socket path: %w", err)
	}
	if s.config.CleanupOnStart {
		if err := s.CleanupSocketFile(); err != nil {
			return fmt.Errorf("failed to cleanup socket file: %w", err)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return fmt.Errorf("failed to resolve socket address: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to bind socket: %w", err)
	}
	ln.SetUnlinkOnClose(s.config.CleanupOnShutdown)

	s.listener = ln
	s.executor = NewExecutor(s.config.Workers, s.config.QueueSize)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.logger.Info("listening", zap.String("socket", path))
	return nil
}

// Serve accepts connections until Stop is called. It returns nil after a
// clean stop.
func (s *ContactsServer) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	s.Emit(EventListening, s.config.SocketPath)
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			s.Emit(EventError, err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c, ok := s.track(conn)
		if !ok {
			s.logger.Warn("connection refused, limit reached", zap.Int("max", s.config.MaxConnections))
			conn.Close()
			continue
		}
		go s.handleConnection(c)
	}
}

// ListenAndServe binds the socket and serves until Stop is called
func (s *ContactsServer) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Run serves until ctx is cancelled, then stops the server
func (s *ContactsServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()
	return s.Serve()
}

// Stop closes the listener and every connection, cancels running handlers
// and waits for the worker pool to drain.
func (s *ContactsServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ln := s.listener
	s.listener = nil
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.cancel()
	executor := s.executor
	s.mu.Unlock()

	ln.Close()
	for _, c := range conns {
		c.conn.Close()
	}
	s.wg.Wait()
	executor.Close()

	if s.config.CleanupOnShutdown {
		if err := s.CleanupSocketFile(); err != nil {
			s.logger.Warn("failed to cleanup socket file", zap.Error(err))
		}
	}
	s.logger.Info("stopped")
}

func (s *ContactsServer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ContactsServer) track(conn *net.UnixConn) (*connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, false
	}
	if s.config.MaxConnections > 0 && len(s.conns) >= s.config.MaxConnections {
		return nil, false
	}
	c := &connection{conn: conn}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return c, true
}

func (s *ContactsServer) untrack(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.conn.Close()
}

func (s *ContactsServer) handleConnection(c *connection) {
	defer s.wg.Done()
	defer s.untrack(c)

	s.logger.Debug("connection opened")
	s.Emit(EventConnection, nil)
	defer s.Emit(EventDisconnection, nil)

	for {
		data, err := s.framing.ReadMessage(c.conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), !s.isRunning():
				s.logger.Debug("connection closed")
			case errors.Is(err, core.ErrMessageTooLarge):
				// The rest of the frame is unread, so the stream cannot resync.
				s.logger.Warn("frame too large", zap.Error(err))
				s.send(c, models.NewErrorResponse("", "", models.NewJSONRPCError(models.MessageFramingError, err.Error())))
			default:
				s.logger.Debug("read failed", zap.Error(err))
				s.Emit(EventError, err)
			}
			return
		}
		s.dispatch(c, data)
	}
}

// dispatch decodes one frame and queues it on the worker pool. Malformed
// requests and rejected submissions are answered inline. EventRequest fires
// once a request is queued.
func (s *ContactsServer) dispatch(c *connection, data []byte) {
	if err := s.framing.ValidateMessageFormat(data); err != nil {
		s.send(c, models.NewErrorResponse("", "", models.NewJSONRPCError(models.ParseError, err.Error())))
		return
	}
	req := &models.Request{}
	if err := req.FromJSON(data); err != nil {
		s.send(c, models.NewErrorResponse("", "", models.NewJSONRPCError(models.ParseError, err.Error())))
		return
	}
	if rpcErr := s.validateRequest(req); rpcErr != nil {
		s.send(c, models.NewErrorResponse(req.ID, req.ChannelID, rpcErr))
		return
	}

	err := s.executor.Submit(func() {
		resp, finished := s.processRequest(req)
		s.send(c, resp)
		s.Emit(EventResponse, resp)
		// A timed-out handler keeps its worker until it returns.
		<-finished
	})
	if err != nil {
		s.logger.Warn("request rejected",
			zap.String("method", req.Method),
			zap.String("request", req.ID),
			zap.Error(err))
		s.send(c, models.NewErrorResponse(req.ID, req.ChannelID,
			models.NewJSONRPCError(models.ServiceUnavailable, err.Error())))
		return
	}
	s.Emit(EventRequest, req)
}

func (s *ContactsServer) validateRequest(req *models.Request) *models.JSONRPCError {
	if req.ID == "" {
		return models.NewJSONRPCError(models.InvalidRequest, "request id is required")
	}
	if err := s.validator.ValidateMethodName(req.Method); err != nil {
		return models.NewJSONRPCError(models.InvalidRequest, err.Error())
	}
	if IsBuiltin(req.Method) {
		return nil
	}
	if err := s.validator.ValidateChannelID(req.ChannelID); err != nil {
		return models.NewJSONRPCError(models.InvalidRequest, err.Error())
	}
	return nil
}

var finishedNow = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// processRequest answers req. The returned channel is closed once the
// handler has returned, which may be after a timeout response.
func (s *ContactsServer) processRequest(req *models.Request) (*models.Response, <-chan struct{}) {
	if resp, handled := s.handleBuiltinRequest(req); handled {
		return resp, finishedNow
	}
	if req.ChannelID != s.config.ChannelID {
		return models.NewErrorResponse(req.ID, req.ChannelID, methodNotFound(req.ChannelID+"."+req.Method)), finishedNow
	}
	if s.config.ValidateRequests && s.config.Manifest != nil {
		if err := s.config.Manifest.ValidateArgs(req.ChannelID, req.Method, req.Args); err != nil {
			return models.NewErrorResponse(req.ID, req.ChannelID, s.validationError(req.Method, err)), finishedNow
		}
	}

	timeout := req.TimeoutDuration()
	if timeout <= 0 {
		timeout = s.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   *models.JSONRPCError
	}
	done := make(chan outcome, 1)
	finished := make(chan struct{})
	start := time.Now()
	go func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked", zap.String("method", req.Method), zap.Any("panic", r))
				done <- outcome{err: models.NewJSONRPCError(models.InternalError, fmt.Sprint(r))}
			}
		}()
		value, rpcErr := s.registry.ExecuteHandler(ctx, req)
		done <- outcome{value: value, err: rpcErr}
	}()

	select {
	case o := <-done:
		s.logger.Debug("request handled",
			zap.String("method", req.Method),
			zap.String("request", req.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("success", o.err == nil))
		if o.err != nil {
			return models.NewErrorResponse(req.ID, req.ChannelID, o.err), finished
		}
		return models.NewSuccessResponse(req.ID, req.ChannelID, o.value), finished
	case <-ctx.Done():
		if s.ctx.Err() != nil {
			return models.NewErrorResponse(req.ID, req.ChannelID,
				models.NewJSONRPCError(models.ServiceUnavailable, "server is shutting down")), finished
		}
		s.logger.Warn("handler timed out", zap.String("method", req.Method), zap.Duration("timeout", timeout))
		return models.NewErrorResponse(req.ID, req.ChannelID,
			models.NewJSONRPCError(models.HandlerTimeout, fmt.Sprintf("%s did not finish within %s", req.Method, timeout))), finished
	}
}

// handleBuiltinRequest handles built-in requests that are always available
func (s *ContactsServer) handleBuiltinRequest(req *models.Request) (*models.Response, bool) {
	switch req.Method {
	case MethodPing:
		result := map[string]interface{}{
			"message":   "pong",
			"timestamp": float64(time.Now().Unix()),
		}
		return models.NewSuccessResponse(req.ID, req.ChannelID, result), true

	case MethodGetInfo:
		result := map[string]interface{}{
			"implementation": "go",
			"version":        s.config.Version,
			"architecture":   "SOCK_STREAM",
			"channel":        s.config.ChannelID,
			"methods":        s.registry.Methods(),
			"timestamp":      float64(time.Now().Unix()),
		}
		return models.NewSuccessResponse(req.ID, req.ChannelID, result), true

	case MethodManifest:
		if s.config.Manifest == nil {
			return models.NewErrorResponse(req.ID, req.ChannelID,
				models.NewJSONRPCError(models.ResourceNotFound, "no manifest loaded")), true
		}
		return models.NewSuccessResponse(req.ID, req.ChannelID, s.config.Manifest), true

	default:
		return nil, false
	}
}

func (s *ContactsServer) send(c *connection, resp *models.Response) {
	data, err := resp.ToJSON()
	if err == nil && len(data) > s.framing.MaxMessageSize() {
		err = fmt.Errorf("%w: response of %d bytes", core.ErrMessageTooLarge, len(data))
		resp = models.NewErrorResponse(resp.RequestID, resp.ChannelID,
			models.NewJSONRPCError(models.ResourceLimitExceeded, err.Error()))
		data, err = resp.ToJSON()
	} else if err != nil {
		s.logger.Error("failed to encode response", zap.String("request", resp.RequestID), zap.Error(err))
		resp = models.NewErrorResponse(resp.RequestID, resp.ChannelID,
			models.NewJSONRPCError(models.InternalError, err.Error()))
		data, err = resp.ToJSON()
	}
	if err != nil {
		return
	}

	c.writeMu.Lock()
	err = s.framing.WriteMessage(c.conn, data)
	c.writeMu.Unlock()
	if err != nil {
		s.logger.Debug("response not delivered", zap.String("request", resp.RequestID), zap.Error(err))
	}
}

// validationError maps a manifest rejection of req args. Methods listed in
// ValidationFailures report their fixed failure message instead.
func (s *ContactsServer) validationError(method string, err error) *models.JSONRPCError {
	var ve *manifest.ValidationError
	if msg, ok := s.config.ValidationFailures[method]; ok && errors.As(err, &ve) {
		s.logger.Debug("arguments rejected", zap.String("method", method), zap.Error(err))
		return models.NewFailure(msg)
	}
	return manifestError(method, err)
}

func manifestError(method string, err error) *models.JSONRPCError {
	var ve *manifest.ValidationError
	switch {
	case errors.Is(err, manifest.ErrUnknownChannel), errors.Is(err, manifest.ErrUnknownMethod):
		return methodNotFound(method)
	case errors.As(err, &ve):
		return models.NewValidationError(ve.Field, ve.Value, ve.Message)
	default:
		return models.NewJSONRPCError(models.ManifestValidationErr, err.Error())
	}
}
