// Package client is a typed client for the contacts channel.
package client

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/protocol"
)

// ReadOptions mirror the flags accepted by the read methods
type ReadOptions struct {
	WithThumbnails      bool
	PhotoHighResolution bool
	OrderByGivenName    bool
}

func (o ReadOptions) args() map[string]interface{} {
	return map[string]interface{}{
		"withThumbnails":      o.WithThumbnails,
		"photoHighResolution": o.PhotoHighResolution,
		"orderByGivenName":    o.OrderByGivenName,
	}
}

// ContactsClient calls the contacts methods over a protocol.Client.
// Write methods return nil on success; a failure is a *models.JSONRPCError
// carrying only a message.
type ContactsClient struct {
	rpc *protocol.Client
}

// New wraps an established connection
func New(rpc *protocol.Client) *ContactsClient {
	return &ContactsClient{rpc: rpc}
}

// Dial connects to the server at socketPath
func Dial(ctx context.Context, socketPath string, config ...protocol.ClientConfig) (*ContactsClient, error) {
	rpc, err := protocol.Dial(ctx, socketPath, config...)
	if err != nil {
		return nil, err
	}
	return New(rpc), nil
}

// RPC exposes the underlying connection
func (c *ContactsClient) RPC() *protocol.Client {
	return c.rpc
}

// GetContacts lists contacts whose display name starts with query, or all
// contacts when query is nil.
func (c *ContactsClient) GetContacts(ctx context.Context, query *string, opts ReadOptions) ([]*contacts.Contact, error) {
	args := opts.args()
	if query != nil {
		args["query"] = *query
	}
	result, err := c.rpc.Call(ctx, "getContacts", args)
	if err != nil {
		return nil, err
	}
	return decodeContacts(result)
}

// GetContactsForPhone lists contacts owning a number matching phone
func (c *ContactsClient) GetContactsForPhone(ctx context.Context, phone string, opts ReadOptions) ([]*contacts.Contact, error) {
	args := opts.args()
	args["phone"] = phone
	result, err := c.rpc.Call(ctx, "getContactsForPhone", args)
	if err != nil {
		return nil, err
	}
	return decodeContacts(result)
}

// GetAvatar returns the contact's photo, or nil when it has none
func (c *ContactsClient) GetAvatar(ctx context.Context, contact *contacts.Contact, highRes bool) ([]byte, error) {
	result, err := c.rpc.Call(ctx, "getAvatar", map[string]interface{}{
		"contact":             contact.ToMap(),
		"photoHighResolution": highRes,
	})
	if err != nil {
		return nil, err
	}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode avatar: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unexpected avatar type %T", result)
	}
}

// AddContact stores contact as a new contact
func (c *ContactsClient) AddContact(ctx context.Context, contact *contacts.Contact) error {
	_, err := c.rpc.Call(ctx, "addContact", contact.ToMap())
	return err
}

// UpdateContact rewrites the contact identified by contact.Identifier
func (c *ContactsClient) UpdateContact(ctx context.Context, contact *contacts.Contact) error {
	_, err := c.rpc.Call(ctx, "updateContact", contact.ToMap())
	return err
}

// DeleteContact removes the contact identified by contact.Identifier
func (c *ContactsClient) DeleteContact(ctx context.Context, contact *contacts.Contact) error {
	_, err := c.rpc.Call(ctx, "deleteContact", contact.ToMap())
	return err
}

// Ping checks that the server answers
func (c *ContactsClient) Ping(ctx context.Context) error {
	return c.rpc.Ping(ctx)
}

// Close closes the connection
func (c *ContactsClient) Close() error {
	return c.rpc.Close()
}

func decodeContacts(result interface{}) ([]*contacts.Contact, error) {
	items, ok := result.([]interface{})
	if !ok && result != nil {
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
	out := make([]*contacts.Contact, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("contact %d is %T, not an object", i, item)
		}
		contact, err := contacts.FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		out = append(out, contact)
	}
	return out, nil
}
