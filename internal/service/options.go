package service

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storefront/internal/cache"
	"storefront/internal/events"
)

// Options carries the optional collaborators shared by the services.
// Zero values fall back to no-op or process defaults.
type Options struct {
	Cache  cache.ProductCache
	Events events.Publisher
	Logger *slog.Logger
	// Concurrency bounds parallel product lookups during placement
	Concurrency int
	Clock       func() time.Time
	NewID       func() string
}

func (o Options) withDefaults() Options {
	if o.Cache == nil {
		o.Cache = cache.Noop{}
	}
	if o.Events == nil {
		o.Events = events.Noop{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Concurrency < 1 {
		o.Concurrency = 8
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
