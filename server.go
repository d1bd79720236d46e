package server

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/bhoriuchi/graphql-ws-bridge/auth"
	"github.com/bhoriuchi/graphql-ws-bridge/config"
	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/gqlclient"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/options"
	"github.com/bhoriuchi/graphql-ws-bridge/token"
	"github.com/bhoriuchi/graphql-ws-bridge/ws/bridge"
	"github.com/bhoriuchi/graphql-ws-bridge/ws/protocols"
	"github.com/gorilla/websocket"
)

// Constants
const (
	ContentTypeJSON = "application/json"
)

// Server proxies GraphQL HTTP requests and bridges realtime connections to
// the upstream engine
type Server struct {
	log      *logger.LogWrapper
	options  *options.Options
	upgrader websocket.Upgrader
	authn    *auth.Authenticator
	client   *gqlclient.Client
	health   *gqlclient.Client
	bridge   *bridge.Bridge

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

// New creates a server from cfg
func New(cfg *config.Config, opts ...options.Option) (*Server, error) {
	options := &options.Options{
		LogFunc:      logger.NoopLogFunc,
		MaxBodyBytes: options.DefaultMaxBodyBytes,
		ReadLimit:    options.DefaultReadLimit,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.CheckOrigin == nil {
		options.CheckOrigin = OriginChecker(cfg.AllowedOrigins)
	}

	log := options.Logger
	if log == nil {
		log = logger.NewLogWrapper(options.LogFunc, nil)
	}

	authn := auth.New(auth.Config{
		Issuer:         token.NewService(cfg.JWTSecret),
		Sessions:       token.NewSessionDecrypter(cfg.SessionSecret),
		AdminSecret:    cfg.AdminSecret,
		SessionCookies: cfg.SessionCookies,
		UserRole:       cfg.UserRole,
		TokenTTL:       cfg.TokenTTL,
		Logger:         log,
	})

	client, err := gqlclient.NewClient(&gqlclient.Options{
		URL:            cfg.UpstreamURL,
		Insecure:       cfg.UpstreamInsecure,
		RequestTimeout: cfg.UpstreamTimeout,
		HTTPClient:     options.HTTPClient,
	})
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "new upstream client", err)
	}

	// the health probe runs with the elevated credential when there is one
	var before []gqlclient.BeforeFunc
	if elevated, err := authn.Elevated(); err == nil {
		before = append(before, gqlclient.WithHeader(elevated.HeaderName(), elevated.HeaderValue()))
	}

	health, err := gqlclient.NewClient(&gqlclient.Options{
		URL:            cfg.UpstreamURL,
		Insecure:       cfg.UpstreamInsecure,
		RequestTimeout: cfg.UpstreamTimeout,
		HTTPClient:     options.HTTPClient,
		Before:         before,
	})
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "new health client", err)
	}

	b, err := bridge.New(bridge.Config{
		UpstreamURL: cfg.UpstreamWSURL,
		Dialer:      options.Dialer,
		DialTimeout: cfg.DialTimeout,
		Insecure:    cfg.UpstreamInsecure,
		Logger:      log,
		Metrics:     options.Metrics,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		log:     log,
		options: options,
		upgrader: websocket.Upgrader{
			CheckOrigin:  options.CheckOrigin,
			Subprotocols: protocols.Subprotocols,
		},
		authn:  authn,
		client: client,
		health: health,
		bridge: b,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// IsWSUpgrade identifies a websocket upgrade
func IsWSUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// ServeHTTP dispatches websocket upgrades to the bridge and POST requests to
// the query forwarder
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsWSUpgrade(r) {
		s.WSHandler(w, r)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if s.options.ContextFunc != nil {
		ctx = s.options.ContextFunc(options.RequestTypeHTTP, r)
	}
	s.QueryHandler(ctx, w, r)
}

// OriginChecker accepts websocket upgrades whose Origin exactly matches one
// of allowed. "*" accepts any origin and requests without an Origin header
// are always accepted. An empty list falls back to the upgrader's same
// origin check.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	origins := map[string]struct{}{}
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		origins[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

// track registers a bridged connection unless the server is closing
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns.Add(1)
	return true
}

// Close closes every bridged connection with a going away code and waits
// for them to finish or for ctx to be done. Upgrades completing after Close
// are closed immediately.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
