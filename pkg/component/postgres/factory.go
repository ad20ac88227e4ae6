package postgres

import (
	"context"
	"fmt"

	"github.com/kart-io/bookqa/pkg/component/storage"
	options "github.com/kart-io/bookqa/pkg/options/postgres"
)

// Options is re-exported from pkg/options/postgres for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/postgres for convenience.
var NewOptions = options.NewOptions

// Factory builds PostgreSQL clients for the storage manager. The server
// registers one factory at startup and lets storage.Manager own the
// resulting client's lifecycle.
type Factory struct {
	opts *Options
}

// NewFactory returns a factory bound to the given options.
func NewFactory(opts *Options) *Factory {
	return &Factory{
		opts: opts,
	}
}

// Create validates the options, connects, and pings before returning.
// Implements storage.Factory.
func (f *Factory) Create(ctx context.Context) (storage.Client, error) {
	if f.opts == nil {
		return nil, fmt.Errorf("postgres options cannot be nil")
	}

	client, err := NewWithContext(ctx, f.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres client: %w", err)
	}

	return client, nil
}

// Options returns the options this factory was built with.
func (f *Factory) Options() *Options {
	return f.opts
}

// Clone returns a factory with a copy of the options, so callers can
// tweak a field without touching the original.
func (f *Factory) Clone() *Factory {
	optsCopy := *f.opts
	return &Factory{
		opts: &optsCopy,
	}
}
