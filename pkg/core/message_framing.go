package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultMaxMessageSize bounds a single frame. Contact lists with thumbnails
// are far larger than a datagram, so the default is generous.
const DefaultMaxMessageSize = 16 * 1024 * 1024

// ErrMessageTooLarge is returned when a frame exceeds the configured limit
var ErrMessageTooLarge = errors.New("message exceeds maximum allowed size")

// MessageFraming handles the 4-byte big-endian length prefix protocol
type MessageFraming struct {
	maxMessageSize int
}

// NewMessageFraming creates a new message framing handler
func NewMessageFraming(maxMessageSize int) *MessageFraming {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &MessageFraming{
		maxMessageSize: maxMessageSize,
	}
}

// MaxMessageSize returns the frame size limit
func (mf *MessageFraming) MaxMessageSize() int {
	return mf.maxMessageSize
}

// WriteMessage writes a message with 4-byte big-endian length prefix.
// Prefix and payload go out in a single Write so concurrent writers that
// serialize on a mutex never interleave partial frames.
func (mf *MessageFraming) WriteMessage(w io.Writer, message []byte) error {
	messageLen := len(message)
	if messageLen > mf.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, messageLen, mf.maxMessageSize)
	}

	frame := make([]byte, 4+messageLen)
	binary.BigEndian.PutUint32(frame[:4], uint32(messageLen))
	copy(frame[4:], message)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message frame: %w", err)
	}
	return nil
}

// ReadMessage reads a message with 4-byte big-endian length prefix.
// A clean EOF before the prefix is returned unwrapped.
func (mf *MessageFraming) ReadMessage(r io.Reader) ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}

	messageLen := binary.BigEndian.Uint32(lengthBytes)
	if int64(messageLen) > int64(mf.maxMessageSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, messageLen, mf.maxMessageSize)
	}
	if messageLen == 0 {
		return []byte{}, nil
	}

	message := make([]byte, messageLen)
	if _, err := io.ReadFull(r, message); err != nil {
		return nil, fmt.Errorf("failed to read message payload: %w", err)
	}
	return message, nil
}

// ValidateMessageFormat rejects payloads with null bytes or invalid UTF-8
func (mf *MessageFraming) ValidateMessageFormat(message []byte) error {
	for i, b := range message {
		if b == 0 {
			return fmt.Errorf("null byte detected at position %d", i)
		}
	}
	if !utf8.Valid(message) {
		return fmt.Errorf("message contains invalid UTF-8 sequences")
	}
	return nil
}
