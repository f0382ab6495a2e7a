package core

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFramingRoundTrip(t *testing.T) {
	mf := NewMessageFraming(1024)
	var buf bytes.Buffer

	require.NoError(t, mf.WriteMessage(&buf, []byte(`{"method":"ping"}`)))
	require.NoError(t, mf.WriteMessage(&buf, []byte{}))
	require.NoError(t, mf.WriteMessage(&buf, []byte(`{"method":"getContacts"}`)))

	first, err := mf.ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"method":"ping"}`, string(first))

	empty, err := mf.ReadMessage(&buf)
	require.NoError(t, err)
	assert.Empty(t, empty)

	third, err := mf.ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"method":"getContacts"}`, string(third))

	_, err = mf.ReadMessage(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestMessageFramingLengthPrefixIsBigEndian(t *testing.T) {
	mf := NewMessageFraming(1024)
	var buf bytes.Buffer
	require.NoError(t, mf.WriteMessage(&buf, []byte("abc")))

	raw := buf.Bytes()
	require.Len(t, raw, 7)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(raw[:4]))
	assert.Equal(t, "abc", string(raw[4:]))
}

func TestMessageFramingRejectsOversized(t *testing.T) {
	mf := NewMessageFraming(8)

	err := mf.WriteMessage(io.Discard, []byte("this is too long"))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	var buf bytes.Buffer
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, 9)
	buf.Write(prefix)
	_, err = mf.ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestMessageFramingTruncatedPayload(t *testing.T) {
	mf := NewMessageFraming(1024)
	var buf bytes.Buffer
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, 10)
	buf.Write(prefix)
	buf.WriteString("short")

	_, err := mf.ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload")
}

func TestValidateMessageFormat(t *testing.T) {
	mf := NewMessageFraming(0)
	assert.Equal(t, DefaultMaxMessageSize, mf.MaxMessageSize())
	assert.NoError(t, mf.ValidateMessageFormat([]byte(`{"a":"ü"}`)))
	assert.Error(t, mf.ValidateMessageFormat([]byte{'a', 0, 'b'}))
	assert.Error(t, mf.ValidateMessageFormat([]byte{0xff, 0xfe}))
}

func TestValidateSocketPath(t *testing.T) {
	sv := NewSecurityValidator("/srv/contacts")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"tmp", "/tmp/gocontacts.sock", false},
		{"extra dir", "/srv/contacts/api.sock", false},
		{"empty", "", true},
		{"traversal", "/tmp/../etc/passwd", true},
		{"outside", "/home/user/contacts.sock", true},
		{"bad chars", "/tmp/contacts sock", true},
		{"too long", "/tmp/" + strings.Repeat("a", 120), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sv.ValidateSocketPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNames(t *testing.T) {
	sv := NewSecurityValidator()
	assert.NoError(t, sv.ValidateChannelID("contacts"))
	assert.NoError(t, sv.ValidateMethodName("getContactsForPhone"))
	assert.Error(t, sv.ValidateMethodName(""))
	assert.Error(t, sv.ValidateMethodName("get;rm -rf"))
	assert.Error(t, sv.ValidateChannelID("../contacts"))
}
