// Package service implements the contact operations on top of a content
// store: reading rows into contacts, building write batches and loading
// photos.
package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/pkg/provider"
)

// ErrInvalidIdentifier is returned when a contact lacks a usable identifier.
var ErrInvalidIdentifier = errors.New("contact has no valid identifier")

// DefaultThumbnailConcurrency bounds parallel photo loads for one listing.
const DefaultThumbnailConcurrency = 4

// Service performs contact operations against a provider.
type Service struct {
	provider             provider.Provider
	logger               *zap.Logger
	thumbnailConcurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithThumbnailConcurrency bounds parallel photo loads. Values below one
// load photos sequentially.
func WithThumbnailConcurrency(n int) Option {
	return func(s *Service) {
		if n < 1 {
			n = 1
		}
		s.thumbnailConcurrency = n
	}
}

// New creates a Service backed by p.
func New(p provider.Provider, opts ...Option) *Service {
	s := &Service{
		provider:             p,
		logger:               zap.NewNop(),
		thumbnailConcurrency: DefaultThumbnailConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
