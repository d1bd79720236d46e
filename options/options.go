package options

import (
	"context"
	"net/http"

	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/metrics"
	"github.com/bhoriuchi/graphql-ws-bridge/ws/bridge"
)

const (
	RequestTypeHTTP RequestType = "http"
	RequestTypeWS   RequestType = "ws"
)

const (
	DefaultMaxBodyBytes int64 = 10 << 20
	DefaultReadLimit    int64 = 1 << 20
)

type RequestType string

// ContextFunc derives the context an upstream request runs with
type ContextFunc func(t RequestType, r *http.Request) context.Context

// ResultCallbackFunc is called after a forwarded request with the upstream
// status and body. status is 0 when the upstream was not reached.
type ResultCallbackFunc func(ctx context.Context, r *http.Request, status int, responseBody []byte)

type Option func(opts *Options)

type Options struct {
	LogFunc            logger.LogFunc
	Logger             *logger.LogWrapper
	ContextFunc        ContextFunc
	ResultCallbackFunc ResultCallbackFunc
	CheckOrigin        func(r *http.Request) bool
	Metrics            *metrics.Metrics
	Dialer             bridge.Dialer
	HTTPClient         *http.Client
	MaxBodyBytes       int64
	ReadLimit          int64
}

func WithLogFunc(l logger.LogFunc) Option {
	return func(opts *Options) {
		opts.LogFunc = l
	}
}

// WithLogger uses an existing log wrapper and its fields. It takes
// precedence over WithLogFunc.
func WithLogger(l *logger.LogWrapper) Option {
	return func(opts *Options) {
		opts.Logger = l
	}
}

func WithContextFunc(f ContextFunc) Option {
	return func(opts *Options) {
		opts.ContextFunc = f
	}
}

func WithResultCallbackFunc(f ResultCallbackFunc) Option {
	return func(opts *Options) {
		opts.ResultCallbackFunc = f
	}
}

// WithCheckOrigin sets the websocket origin check. By default upgrades are
// checked against the configured allowed origins.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(opts *Options) {
		opts.CheckOrigin = f
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithDialer replaces the upstream websocket dialer
func WithDialer(d bridge.Dialer) Option {
	return func(opts *Options) {
		opts.Dialer = d
	}
}

// WithHTTPClient replaces the upstream HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = c
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(opts *Options) {
		opts.MaxBodyBytes = n
	}
}

// WithReadLimit limits the size of a single client websocket message
func WithReadLimit(n int64) Option {
	return func(opts *Options) {
		opts.ReadLimit = n
	}
}
