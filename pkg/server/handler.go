package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jowharshamshiri/GoContacts/pkg/models"
)

// HandlerResult represents the result of a handler execution
type HandlerResult struct {
	Value interface{}
	Error *models.JSONRPCError
}

// RequestHandler answers one request. The context is cancelled when the
// request times out or the server stops.
type RequestHandler interface {
	Handle(ctx context.Context, req *models.Request) HandlerResult
}

// SyncHandler wraps a synchronous handler function
type SyncHandler func(ctx context.Context, req *models.Request) HandlerResult

func (h SyncHandler) Handle(ctx context.Context, req *models.Request) HandlerResult {
	return h(ctx, req)
}

// Direct response handlers for common types
type BoolHandler func(ctx context.Context, req *models.Request) (bool, error)
type ArrayHandler func(ctx context.Context, req *models.Request) ([]interface{}, error)
type ObjectHandler func(ctx context.Context, req *models.Request) (map[string]interface{}, error)

// CustomHandler for any JSON-serializable type
type CustomHandler[T any] func(ctx context.Context, req *models.Request) (T, error)

func NewBoolHandler(fn BoolHandler) RequestHandler {
	return NewCustomHandler(CustomHandler[bool](fn))
}

func NewArrayHandler(fn ArrayHandler) RequestHandler {
	return NewCustomHandler(CustomHandler[[]interface{}](fn))
}

func NewObjectHandler(fn ObjectHandler) RequestHandler {
	return NewCustomHandler(CustomHandler[map[string]interface{}](fn))
}

// NewCustomHandler adapts a typed function. Errors that already are
// JSON-RPC errors are preserved, anything else becomes InternalError.
func NewCustomHandler[T any](fn CustomHandler[T]) RequestHandler {
	return SyncHandler(func(ctx context.Context, req *models.Request) HandlerResult {
		value, err := fn(ctx, req)
		if err != nil {
			return HandlerResult{Error: models.MapErrorToJSONRPC(err)}
		}
		return HandlerResult{Value: value}
	})
}

// SerializeResponse converts a HandlerResult to a JSON-serializable response
func SerializeResponse(result HandlerResult) (interface{}, *models.JSONRPCError) {
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Value, nil
}

// Built-in methods answered by the server itself.
const (
	MethodPing     = "ping"
	MethodGetInfo  = "get_info"
	MethodManifest = "manifest"
)

var builtinMethods = map[string]bool{
	MethodPing:     true,
	MethodGetInfo:  true,
	MethodManifest: true,
}

// IsBuiltin reports whether method is answered by the server itself
func IsBuiltin(method string) bool {
	return builtinMethods[method]
}

// HandlerRegistry maps method names to handlers
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]RequestHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]RequestHandler),
	}
}

// RegisterHandler binds method to handler. Built-in methods cannot be
// overridden.
func (r *HandlerRegistry) RegisterHandler(method string, handler RequestHandler) error {
	if IsBuiltin(method) {
		return fmt.Errorf("cannot override built-in method: %s", method)
	}
	if handler == nil {
		return fmt.Errorf("handler for %s is nil", method)
	}
	r.mu.Lock()
	r.handlers[method] = handler
	r.mu.Unlock()
	return nil
}

func (r *HandlerRegistry) UnregisterHandler(method string) {
	r.mu.Lock()
	delete(r.handlers, method)
	r.mu.Unlock()
}

func (r *HandlerRegistry) GetHandler(method string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[method]
	return handler, exists
}

func (r *HandlerRegistry) HasHandler(method string) bool {
	_, exists := r.GetHandler(method)
	return exists
}

// Methods lists the registered method names in sorted order
func (r *HandlerRegistry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *HandlerRegistry) ExecuteHandler(ctx context.Context, req *models.Request) (interface{}, *models.JSONRPCError) {
	handler, exists := r.GetHandler(req.Method)
	if !exists {
		return nil, methodNotFound(req.Method)
	}
	return SerializeResponse(handler.Handle(ctx, req))
}

func methodNotFound(method string) *models.JSONRPCError {
	return &models.JSONRPCError{
		Code:    models.MethodNotFound,
		Message: models.MethodNotFound.Message(),
		Data: &models.JSONRPCErrorData{
			Details: "Method not found: " + method,
			Context: map[string]interface{}{"method": method},
		},
	}
}
