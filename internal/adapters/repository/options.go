package repository

import (
	"strings"
	"time"

	"github.com/okian/shortlist/pkg/logger"
)

const (
	defaultNamespace   = "default"
	defaultReconnect   = 500 * time.Millisecond
	maxReconnectDelay  = 30 * time.Second
	defaultWriteTimout = 10 * time.Second
)

type options struct {
	namespace    string
	log          logger.Logger
	now          func() time.Time
	reconnect    time.Duration
	writeTimeout time.Duration
	writeHook    func(collection string) error
}

// Option applies a configuration option to a store.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		namespace:    defaultNamespace,
		log:          logger.NamedOrNop("repository"),
		now:          func() time.Time { return time.Now().UTC() },
		reconnect:    defaultReconnect,
		writeTimeout: defaultWriteTimout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNamespace scopes both collections to one deployment.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns = strings.TrimSpace(ns); ns != "" {
			o.namespace = ns
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithReconnectDelay sets the initial backoff of the notification listener.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnect = d
		}
	}
}

// WithWriteTimeout bounds each append.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithWriteHook runs before every append; a non-nil error fails the write.
// Used to simulate transport failures.
func WithWriteHook(fn func(collection string) error) Option {
	return func(o *options) {
		o.writeHook = fn
	}
}
