package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is a method call sent over the contacts channel
type Request struct {
	ID        string                 `json:"id"`
	ChannelID string                 `json:"channelId"`
	Method    string                 `json:"method"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Timeout   *float64               `json:"timeout,omitempty"`
	Timestamp float64                `json:"timestamp"`
}

// Response answers exactly one Request, correlated by RequestID
type Response struct {
	RequestID string        `json:"requestId"`
	ChannelID string        `json:"channelId"`
	Success   bool          `json:"success"`
	Result    interface{}   `json:"result,omitempty"`
	Error     *JSONRPCError `json:"error,omitempty"`
	Timestamp float64       `json:"timestamp"`
}

// NewRequest creates a new request with generated UUID and timestamp
func NewRequest(channelID, method string, args map[string]interface{}, timeout *float64) *Request {
	return &Request{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		Method:    method,
		Args:      args,
		Timeout:   timeout,
		Timestamp: now(),
	}
}

// NewSuccessResponse creates a successful response for a request
func NewSuccessResponse(requestID, channelID string, result interface{}) *Response {
	return &Response{
		RequestID: requestID,
		ChannelID: channelID,
		Success:   true,
		Result:    result,
		Timestamp: now(),
	}
}

// NewErrorResponse creates an error response for a request
func NewErrorResponse(requestID, channelID string, err *JSONRPCError) *Response {
	return &Response{
		RequestID: requestID,
		ChannelID: channelID,
		Success:   false,
		Error:     err,
		Timestamp: now(),
	}
}

// TimeoutDuration returns the per-request timeout, or zero when none was set
func (r *Request) TimeoutDuration() time.Duration {
	if r.Timeout == nil || *r.Timeout <= 0 {
		return 0
	}
	return time.Duration(*r.Timeout * float64(time.Second))
}

// ToJSON serializes the request to JSON bytes
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes JSON bytes to a request
func (r *Request) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// ToJSON serializes the response to JSON bytes
func (r *Response) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes JSON bytes to a response
func (r *Response) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

func now() float64 {
	t := time.Now()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
