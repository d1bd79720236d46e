package bridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/ws/protocols"
	"github.com/gorilla/websocket"
)

// Socket is one end of a bridged connection. *websocket.Conn satisfies it.
//
// WriteMessage is only called from the session's event loop. Close and
// WriteControl may be called concurrently with reads.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	Subprotocol() string
}

// Dialer opens upstream sockets
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// WebSocketDialer dials the upstream engine with gorilla/websocket
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer that negotiates the legacy graphql-ws
// subprotocol the upstream engine speaks
func NewWebSocketDialer(handshakeTimeout time.Duration, insecure bool) *WebSocketDialer {
	return &WebSocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     []string{protocols.GraphQLWS},
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: insecure},
		},
	}
}

// Dial dials url with header on the upgrade request
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &DialError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	return conn, nil
}

// DialError is a failed upgrade that got an HTTP response
type DialError struct {
	Status int
	Err    error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Err, e.Status)
}

func (e *DialError) Unwrap() error {
	return e.Err
}
