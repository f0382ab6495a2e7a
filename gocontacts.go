// Package gocontacts serves an address book over a Unix socket method
// channel.
//
// The layers are:
//   - provider: SQLite content store with transactional batches
//   - service: folds data rows into contacts and builds write batches
//   - plugin: binds the contacts channel methods to the service
//   - server: stream socket server with a bounded worker pool
//   - protocol, client: request correlation and typed client calls
//
// Example Usage:
//
//	store, err := provider.OpenSQLite("contacts.db", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	srv, err := gocontacts.NewServer(server.DefaultServerConfig("/tmp/gocontacts.sock"), store, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = srv.Run(ctx)
package gocontacts

import (
	"context"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/client"
	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/models"
	"github.com/jowharshamshiri/GoContacts/pkg/plugin"
	"github.com/jowharshamshiri/GoContacts/pkg/protocol"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
	"github.com/jowharshamshiri/GoContacts/pkg/server"
	"github.com/jowharshamshiri/GoContacts/pkg/service"
)

const Version = "1.0.0"

type (
	Contact       = contacts.Contact
	Item          = contacts.Item
	PostalAddress = contacts.PostalAddress
)

type (
	Request          = models.Request
	Response         = models.Response
	JSONRPCError     = models.JSONRPCError
	JSONRPCErrorCode = models.JSONRPCErrorCode
)

type (
	ContactsServer = server.ContactsServer
	ServerConfig   = server.ServerConfig
	ContactsClient = client.ContactsClient
	ClientConfig   = protocol.ClientConfig
	ReadOptions    = client.ReadOptions
)

// NewServer builds a server answering the contacts channel from p. The
// embedded manifest is used when config carries none, and a nil config
// selects the defaults.
func NewServer(config *ServerConfig, p provider.Provider, logger *zap.Logger, opts ...service.Option) (*ContactsServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = server.DefaultServerConfig("")
	}
	cfg := *config
	if cfg.Manifest == nil {
		m, err := manifest.Default()
		if err != nil {
			return nil, err
		}
		cfg.Manifest = m
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.ValidationFailures == nil {
		cfg.ValidationFailures = plugin.ValidationFailures()
	}

	svc := service.New(p, append([]service.Option{service.WithLogger(logger)}, opts...)...)
	srv := server.NewContactsServer(&cfg)
	if err := plugin.New(svc, logger).Register(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Dial connects a typed client to the server at socketPath
func Dial(ctx context.Context, socketPath string, config ...ClientConfig) (*ContactsClient, error) {
	return client.Dial(ctx, socketPath, config...)
}
