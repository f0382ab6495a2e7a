package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/jowharshamshiri/GoContacts/pkg/models"
)

// Tracker error codes
const (
	CodePendingLimit = "PENDING_REQUESTS_LIMIT"
	CodeDuplicateID  = "DUPLICATE_REQUEST_ID"
	CodeTimeout      = "REQUEST_TIMEOUT"
	CodeCancelled    = "REQUEST_CANCELLED"
)

// ResponseTrackerError represents response tracking errors
type ResponseTrackerError struct {
	Message string
	Code    string
	Details string
}

func (e *ResponseTrackerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Outcome is delivered exactly once for every tracked request
type Outcome struct {
	Response *models.Response
	Err      error
}

type pendingRequest struct {
	done      chan Outcome
	timer     *time.Timer
	timestamp time.Time
}

// TrackerConfig configures the response tracker
type TrackerConfig struct {
	MaxPendingRequests int
	DefaultTimeout     time.Duration
}

// ResponseTracker correlates responses with the requests that are waiting
// for them and fails requests whose response does not arrive in time.
type ResponseTracker struct {
	mutex   sync.Mutex
	pending map[string]*pendingRequest
	config  TrackerConfig
}

// NewResponseTracker creates a new response tracker
func NewResponseTracker(config TrackerConfig) *ResponseTracker {
	if config.MaxPendingRequests <= 0 {
		config.MaxPendingRequests = 1000
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	return &ResponseTracker{
		pending: make(map[string]*pendingRequest),
		config:  config,
	}
}

// Track registers requestID and returns the channel its outcome is sent on.
// A non-positive timeout selects the configured default.
func (rt *ResponseTracker) Track(requestID string, timeout time.Duration) (<-chan Outcome, error) {
	if timeout <= 0 {
		timeout = rt.config.DefaultTimeout
	}

	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if len(rt.pending) >= rt.config.MaxPendingRequests {
		return nil, &ResponseTrackerError{
			Message: "Too many pending requests",
			Code:    CodePendingLimit,
			Details: fmt.Sprintf("Maximum %d requests allowed", rt.config.MaxPendingRequests),
		}
	}
	if _, exists := rt.pending[requestID]; exists {
		return nil, &ResponseTrackerError{
			Message: "Request already being tracked",
			Code:    CodeDuplicateID,
			Details: fmt.Sprintf("Request %s is already awaiting response", requestID),
		}
	}

	p := &pendingRequest{
		done:      make(chan Outcome, 1),
		timestamp: time.Now(),
	}
	p.timer = time.AfterFunc(timeout, func() {
		rt.finish(requestID, Outcome{Err: &ResponseTrackerError{
			Message: "Request timed out",
			Code:    CodeTimeout,
			Details: fmt.Sprintf("no response to %s within %s", requestID, timeout),
		}})
	})
	rt.pending[requestID] = p
	return p.done, nil
}

// HandleResponse delivers resp to the request waiting for it. It reports
// false when nothing is waiting, for example after a timeout.
func (rt *ResponseTracker) HandleResponse(resp *models.Response) bool {
	return rt.finish(resp.RequestID, Outcome{Response: resp})
}

// Cancel fails a pending request with reason
func (rt *ResponseTracker) Cancel(requestID, reason string) bool {
	if reason == "" {
		reason = "Request cancelled"
	}
	return rt.finish(requestID, Outcome{Err: &ResponseTrackerError{
		Message: reason,
		Code:    CodeCancelled,
		Details: fmt.Sprintf("Request %s was cancelled", requestID),
	}})
}

// CancelAll fails every pending request and returns how many there were
func (rt *ResponseTracker) CancelAll(reason string) int {
	rt.mutex.Lock()
	pending := rt.pending
	rt.pending = make(map[string]*pendingRequest)
	rt.mutex.Unlock()

	if reason == "" {
		reason = "All requests cancelled"
	}
	for _, p := range pending {
		p.timer.Stop()
		p.done <- Outcome{Err: &ResponseTrackerError{Message: reason, Code: CodeCancelled}}
	}
	return len(pending)
}

func (rt *ResponseTracker) finish(requestID string, outcome Outcome) bool {
	rt.mutex.Lock()
	p, exists := rt.pending[requestID]
	if exists {
		delete(rt.pending, requestID)
	}
	rt.mutex.Unlock()

	if !exists {
		return false
	}
	p.timer.Stop()
	p.done <- outcome
	return true
}

// PendingCount returns the number of pending requests
func (rt *ResponseTracker) PendingCount() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return len(rt.pending)
}

// IsTracking checks if a request is being tracked
func (rt *ResponseTracker) IsTracking(requestID string) bool {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	_, exists := rt.pending[requestID]
	return exists
}

// RequestStatistics summarizes pending requests
type RequestStatistics struct {
	PendingCount int     `json:"pendingCount"`
	AverageAge   float64 `json:"averageAge"`
	OldestID     string  `json:"oldestId,omitempty"`
	OldestAge    float64 `json:"oldestAge,omitempty"`
}

// Statistics returns statistics about pending requests
func (rt *ResponseTracker) Statistics() RequestStatistics {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	stats := RequestStatistics{PendingCount: len(rt.pending)}
	if len(rt.pending) == 0 {
		return stats
	}

	now := time.Now()
	total := 0.0
	for id, p := range rt.pending {
		age := now.Sub(p.timestamp).Seconds()
		total += age
		if age > stats.OldestAge {
			stats.OldestID = id
			stats.OldestAge = age
		}
	}
	stats.AverageAge = total / float64(len(rt.pending))
	return stats
}

// Shutdown cancels every pending request
func (rt *ResponseTracker) Shutdown() {
	rt.CancelAll("Tracker shutdown")
}
