// Package bridge relays realtime GraphQL connections between clients and the
// upstream engine.
//
// Each client connection gets its own upstream connection. The bridge runs
// the upstream handshake itself using the credential resolved for the
// client, acknowledges the client once both handshakes are complete and then
// relays operations, translating legacy upstream message types on the way
// back to the client.
package bridge

import (
	"context"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/auth"
	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/metrics"
	"github.com/google/uuid"
)

// Config configures a Bridge
type Config struct {
	UpstreamURL string
	Dialer      Dialer
	DialTimeout time.Duration
	// Insecure skips TLS verification on the default dialer
	Insecure bool
	Logger   *logger.LogWrapper
	Metrics  *metrics.Metrics
}

// Bridge creates bridged sessions
type Bridge struct {
	config Config
	log    *logger.LogWrapper
}

// New creates a bridge
func New(config Config) (*Bridge, error) {
	if config.UpstreamURL == "" {
		return nil, errs.Newf(errs.ErrConfig, "new bridge", "no upstream websocket url")
	}

	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	if config.Dialer == nil {
		config.Dialer = NewWebSocketDialer(config.DialTimeout, config.Insecure)
	}

	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Bridge{
		config: config,
		log:    l,
	}, nil
}

// Serve bridges client to a new upstream connection authenticated with cred
// and blocks until both are closed. The client socket is always closed when
// Serve returns.
func (b *Bridge) Serve(ctx context.Context, client Socket, cred auth.Credential) error {
	id := uuid.NewString()
	actor := cred.Context()
	log := b.log.
		WithField("connectionId", id).
		WithField("subprotocol", client.Subprotocol()).
		WithField("credential", string(actor.Kind))
	if actor.UserID != "" {
		log = log.WithField("userId", actor.UserID).WithField("roles", actor.Roles)
	}

	dialCtx, cancel := context.WithTimeout(ctx, b.config.DialTimeout)
	upstream, err := b.config.Dialer.Dial(dialCtx, b.config.UpstreamURL, cred.Header())
	cancel()
	if err != nil {
		err = errs.New(errs.ErrUpstreamDial, "dial "+b.config.UpstreamURL, err)
		code, reason := errs.CloseCode(err)
		log.WithError(err).Errorf("failed to open upstream connection")
		closeSocket(client, code, reason)
		return err
	}

	log.Debugf("upstream connection opened")
	b.config.Metrics.ConnectionOpened(client.Subprotocol(), string(actor.Kind))

	s := newSession(id, client, upstream, cred, log, b.config.Metrics)
	s.start()
	if s.State() != StateClosed {
		s.run(ctx)
	}

	b.config.Metrics.ConnectionClosed(s.closeCode, s.closedBy.String())
	return nil
}
