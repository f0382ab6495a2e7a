package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jowharshamshiri/GoContacts/pkg/core"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecutorRunsEveryTask(t *testing.T) {
	e := NewExecutor(3, 100)
	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Submit(func() { ran.Add(1) }))
	}
	e.Close()
	assert.Equal(t, int32(50), ran.Load())
	assert.ErrorIs(t, e.Submit(func() {}), ErrExecutorClosed)
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	e := NewExecutor(2, 100)
	var running, peak atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, e.Submit(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}))
	}
	e.Close()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecutorRejectsWhenQueueFull(t *testing.T) {
	e := NewExecutor(1, 1)
	defer e.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, e.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, e.Submit(func() {}))
	assert.ErrorIs(t, e.Submit(func() {}), ErrQueueFull)
	assert.Equal(t, 1, e.Pending())
	close(release)
}

func TestExecutorCapacityIsWorkersPlusQueue(t *testing.T) {
	e := NewExecutor(2, 3)
	defer e.Close()

	release := make(chan struct{})
	var running atomic.Int32
	for i := 0; i < 2; i++ {
		require.NoError(t, e.Submit(func() {
			running.Add(1)
			<-release
		}))
	}
	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, time.Millisecond)

	// Give the dispatcher a chance to take a task it must not take.
	time.Sleep(10 * time.Millisecond)
	accepted := 0
	for i := 0; i < 10; i++ {
		if e.Submit(func() {}) == nil {
			accepted++
		}
	}
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, e.Pending())
	close(release)
}

func TestExecutorShutdownHonorsContext(t *testing.T) {
	e := NewExecutor(1, 1)
	release := make(chan struct{})
	require.NoError(t, e.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	for _, method := range []string{MethodPing, MethodGetInfo, MethodManifest} {
		assert.Error(t, r.RegisterHandler(method, NewBoolHandler(func(context.Context, *models.Request) (bool, error) {
			return true, nil
		})))
	}
	assert.Error(t, r.RegisterHandler("deleteContact", nil))

	require.NoError(t, r.RegisterHandler("deleteContact", NewBoolHandler(func(context.Context, *models.Request) (bool, error) {
		return false, models.NewFailure("Failed to delete the contact")
	})))
	require.NoError(t, r.RegisterHandler("boom", NewObjectHandler(func(context.Context, *models.Request) (map[string]interface{}, error) {
		return nil, errors.New("disk on fire")
	})))
	assert.Equal(t, []string{"boom", "deleteContact"}, r.Methods())

	ctx := context.Background()
	_, rpcErr := r.ExecuteHandler(ctx, &models.Request{Method: "deleteContact"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, models.ServerError, rpcErr.Code)
	assert.Equal(t, "Failed to delete the contact", rpcErr.Message)

	_, rpcErr = r.ExecuteHandler(ctx, &models.Request{Method: "boom"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, models.InternalError, rpcErr.Code)

	_, rpcErr = r.ExecuteHandler(ctx, &models.Request{Method: "nope"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, models.MethodNotFound, rpcErr.Code)

	r.UnregisterHandler("boom")
	assert.False(t, r.HasHandler("boom"))
}

func startServer(t *testing.T, configure func(*ServerConfig)) *ContactsServer {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultServerConfig(filepath.Join(dir, "s.sock"))
	cfg.AllowedDirectories = []string{dir}
	m, err := manifest.Default()
	require.NoError(t, err)
	cfg.Manifest = m
	if configure != nil {
		configure(cfg)
	}

	srv := NewContactsServer(cfg)
	require.NoError(t, srv.Listen())
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Stop()
		assert.NoError(t, <-done)
	})
	return srv
}

type rawClient struct {
	t       *testing.T
	conn    net.Conn
	framing *core.MessageFraming
}

func dial(t *testing.T, srv *ContactsServer) *rawClient {
	t.Helper()
	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawClient{t: t, conn: conn, framing: core.NewMessageFraming(0)}
}

func (c *rawClient) sendRaw(data []byte) {
	require.NoError(c.t, c.framing.WriteMessage(c.conn, data))
}

func (c *rawClient) send(req *models.Request) {
	data, err := req.ToJSON()
	require.NoError(c.t, err)
	c.sendRaw(data)
}

func (c *rawClient) recv() *models.Response {
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := c.framing.ReadMessage(c.conn)
	require.NoError(c.t, err)
	var resp models.Response
	require.NoError(c.t, resp.FromJSON(data))
	return &resp
}

func (c *rawClient) call(method string, args map[string]interface{}) *models.Response {
	req := models.NewRequest(manifest.ContactsChannel, method, args, nil)
	c.send(req)
	resp := c.recv()
	require.Equal(c.t, req.ID, resp.RequestID)
	return resp
}

func TestServerBuiltins(t *testing.T) {
	srv := startServer(t, nil)
	var requests atomic.Int32
	srv.On(EventRequest, func(interface{}) { requests.Add(1) })
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(context.Context, *models.Request) ([]interface{}, error) {
		return []interface{}{}, nil
	})))
	assert.Error(t, srv.RegisterHandler(MethodPing, NewArrayHandler(nil)))

	c := dial(t, srv)

	resp := c.call(MethodPing, nil)
	require.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Result.(map[string]interface{})["message"])

	resp = c.call(MethodGetInfo, nil)
	require.True(t, resp.Success)
	info := resp.Result.(map[string]interface{})
	assert.Equal(t, "SOCK_STREAM", info["architecture"])
	assert.Equal(t, []interface{}{"getContacts"}, info["methods"])

	resp = c.call(MethodManifest, nil)
	require.True(t, resp.Success)
	assert.Equal(t, "GoContacts", resp.Result.(map[string]interface{})["name"])

	assert.Eventually(t, func() bool { return requests.Load() == 3 }, time.Second, time.Millisecond)
}

func TestServerManifestMissing(t *testing.T) {
	srv := startServer(t, func(cfg *ServerConfig) { cfg.Manifest = nil })
	resp := dial(t, srv).call(MethodManifest, nil)
	require.False(t, resp.Success)
	assert.Equal(t, models.ResourceNotFound, resp.Error.Code)
}

func TestServerDispatchesToHandler(t *testing.T) {
	srv := startServer(t, nil)
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(_ context.Context, req *models.Request) ([]interface{}, error) {
		return []interface{}{map[string]interface{}{"displayName": req.Args["query"]}}, nil
	})))
	require.NoError(t, srv.RegisterHandler("addContact", NewBoolHandler(func(context.Context, *models.Request) (bool, error) {
		return false, models.NewFailure("Failed to add the contact")
	})))

	c := dial(t, srv)
	resp := c.call("getContacts", map[string]interface{}{"query": "Ada"})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, []interface{}{map[string]interface{}{"displayName": "Ada"}}, resp.Result)

	resp = c.call("addContact", map[string]interface{}{"givenName": "Ada"})
	require.False(t, resp.Success)
	assert.Equal(t, models.ServerError, resp.Error.Code)
	assert.Equal(t, "Failed to add the contact", resp.Error.Message)
}

func TestServerValidatesAgainstManifest(t *testing.T) {
	srv := startServer(t, nil)
	var called atomic.Bool
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(context.Context, *models.Request) ([]interface{}, error) {
		called.Store(true)
		return nil, nil
	})))
	c := dial(t, srv)

	resp := c.call("getContacts", map[string]interface{}{"withThumbnails": "yes"})
	require.False(t, resp.Success)
	assert.Equal(t, models.InvalidParams, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, "withThumbnails", resp.Error.Data.Field)
	assert.False(t, called.Load())

	resp = c.call("sendEmail", nil)
	require.False(t, resp.Success)
	assert.Equal(t, models.MethodNotFound, resp.Error.Code)

	req := models.NewRequest("calendar", "getContacts", nil, nil)
	c.send(req)
	resp = c.recv()
	require.False(t, resp.Success)
	assert.Equal(t, models.MethodNotFound, resp.Error.Code)
}

func TestServerUnregisteredMethodWithoutValidation(t *testing.T) {
	srv := startServer(t, func(cfg *ServerConfig) { cfg.ValidateRequests = false })
	resp := dial(t, srv).call("getAvatar", nil)
	require.False(t, resp.Success)
	assert.Equal(t, models.MethodNotFound, resp.Error.Code)
}

func TestServerHandlerTimeout(t *testing.T) {
	srv := startServer(t, nil)
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(ctx context.Context, _ *models.Request) ([]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	timeout := 0.05
	req := models.NewRequest(manifest.ContactsChannel, "getContacts", nil, &timeout)
	c := dial(t, srv)
	c.send(req)
	resp := c.recv()
	require.False(t, resp.Success)
	assert.Equal(t, models.HandlerTimeout, resp.Error.Code)
}

func TestServerTimedOutHandlerKeepsItsWorker(t *testing.T) {
	srv := startServer(t, func(cfg *ServerConfig) {
		cfg.Workers = 1
		cfg.QueueSize = 10
	})
	release := make(chan struct{})
	var running, peak atomic.Int32
	require.NoError(t, srv.RegisterHandler("getAvatar", NewArrayHandler(func(context.Context, *models.Request) ([]interface{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// Ignores ctx, like CPU-bound image work.
		<-release
		running.Add(-1)
		return []interface{}{}, nil
	})))

	c := dial(t, srv)
	timeout := 0.02
	for i := 0; i < 3; i++ {
		c.send(models.NewRequest(manifest.ContactsChannel, "getAvatar", nil, &timeout))
	}

	resp := c.recv()
	require.False(t, resp.Success)
	assert.Equal(t, models.HandlerTimeout, resp.Error.Code)

	assert.Never(t, func() bool { return running.Load() > 1 }, 60*time.Millisecond, time.Millisecond)
	require.Eventually(t, func() bool { return srv.executor.Pending() == 2 }, time.Second, time.Millisecond)

	close(release)
	for i := 0; i < 2; i++ {
		c.recv()
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestServerValidationFailureMessages(t *testing.T) {
	srv := startServer(t, func(cfg *ServerConfig) {
		cfg.ValidationFailures = map[string]string{"addContact": "Failed to add the contact"}
	})
	var called atomic.Bool
	handler := NewBoolHandler(func(context.Context, *models.Request) (bool, error) {
		called.Store(true)
		return true, nil
	})
	require.NoError(t, srv.RegisterHandler("addContact", handler))
	require.NoError(t, srv.RegisterHandler("updateContact", handler))
	c := dial(t, srv)

	resp := c.call("addContact", map[string]interface{}{"note": 5})
	require.False(t, resp.Success)
	assert.Equal(t, models.ServerError, resp.Error.Code)
	assert.Equal(t, "Failed to add the contact", resp.Error.Message)
	assert.Nil(t, resp.Error.Data)

	resp = c.call("updateContact", map[string]interface{}{"note": 5})
	require.False(t, resp.Success)
	assert.Equal(t, models.InvalidParams, resp.Error.Code)
	assert.False(t, called.Load())
}

func TestServerRejectsWhenQueueFull(t *testing.T) {
	srv := startServer(t, func(cfg *ServerConfig) {
		cfg.Workers = 1
		cfg.QueueSize = 1
	})
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(ctx context.Context, _ *models.Request) ([]interface{}, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return []interface{}{}, nil
	})))

	var queued atomic.Int32
	srv.On(EventRequest, func(interface{}) { queued.Add(1) })

	c := dial(t, srv)
	c.send(models.NewRequest(manifest.ContactsChannel, "getContacts", nil, nil))
	<-started

	c.send(models.NewRequest(manifest.ContactsChannel, "getContacts", nil, nil))
	require.Eventually(t, func() bool {
		return queued.Load() == 2 && srv.executor.Pending() == 1
	}, time.Second, time.Millisecond)
	rejected := models.NewRequest(manifest.ContactsChannel, "getContacts", nil, nil)
	c.send(rejected)

	resp := c.recv()
	assert.Equal(t, rejected.ID, resp.RequestID)
	require.False(t, resp.Success)
	assert.Equal(t, models.ServiceUnavailable, resp.Error.Code)

	close(release)
	for i := 0; i < 2; i++ {
		assert.True(t, c.recv().Success)
	}
}

func TestServerMalformedFramesKeepConnection(t *testing.T) {
	srv := startServer(t, nil)
	c := dial(t, srv)

	c.sendRaw([]byte("not json"))
	resp := c.recv()
	require.False(t, resp.Success)
	assert.Equal(t, models.ParseError, resp.Error.Code)
	assert.Empty(t, resp.RequestID)

	c.sendRaw([]byte(`{"channelId":"contacts","method":"ping"}`))
	resp = c.recv()
	require.False(t, resp.Success)
	assert.Equal(t, models.InvalidRequest, resp.Error.Code)

	assert.True(t, c.call(MethodPing, nil).Success)
}

func TestServerCorrelatesConcurrentResponses(t *testing.T) {
	srv := startServer(t, nil)
	require.NoError(t, srv.RegisterHandler("getContacts", NewArrayHandler(func(_ context.Context, req *models.Request) ([]interface{}, error) {
		time.Sleep(time.Millisecond)
		return []interface{}{req.Args["query"]}, nil
	})))

	c := dial(t, srv)
	want := make(map[string]string)
	for i := 0; i < 20; i++ {
		q := string(rune('a' + i))
		req := models.NewRequest(manifest.ContactsChannel, "getContacts", map[string]interface{}{"query": q}, nil)
		want[req.ID] = q
		c.send(req)
	}
	for i := 0; i < 20; i++ {
		resp := c.recv()
		require.True(t, resp.Success)
		assert.Equal(t, []interface{}{want[resp.RequestID]}, resp.Result)
	}
}

func TestServerStopRemovesSocket(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultServerConfig(filepath.Join(dir, "stop.sock"))
	cfg.AllowedDirectories = []string{dir}
	srv := NewContactsServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath)
		return err == nil
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestListenRejectsBadSocketPath(t *testing.T) {
	srv := NewContactsServer(DefaultServerConfig("/etc/contacts.sock"))
	assert.Error(t, srv.Listen())
	assert.ErrorIs(t, srv.Serve(), ErrNotListening)
}
