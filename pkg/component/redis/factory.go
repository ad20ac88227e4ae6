package redis

import (
	"context"
	"fmt"

	"github.com/kart-io/bookqa/pkg/component/storage"
	options "github.com/kart-io/bookqa/pkg/options/redis"
)

// Options is re-exported from pkg/options/redis for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/redis for convenience.
var NewOptions = options.NewOptions

// Factory builds Redis clients from a fixed set of options, satisfying
// storage.Factory for dependency injection in tests and server wiring.
type Factory struct {
	opts *options.Options
}

// NewFactory creates a factory bound to the given options.
func NewFactory(opts *options.Options) *Factory {
	return &Factory{
		opts: opts,
	}
}

// Create validates the options, connects, and verifies connectivity.
func (f *Factory) Create(ctx context.Context) (storage.Client, error) {
	if f.opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}

	client, err := NewWithContext(ctx, f.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return client, nil
}

// Options returns the options this factory was built with.
func (f *Factory) Options() *options.Options {
	return f.opts
}

// Clone returns a factory with a shallow copy of the options, for variants
// that differ in a field or two (a second database index, say).
func (f *Factory) Clone() *Factory {
	optsCopy := *f.opts
	return &Factory{
		opts: &optsCopy,
	}
}

var _ storage.Factory = (*Factory)(nil)
