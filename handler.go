package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/auth"
	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/gqlclient"
	"github.com/bhoriuchi/graphql-ws-bridge/middleware"
	"github.com/bhoriuchi/graphql-ws-bridge/utils"
	"github.com/gorilla/websocket"
)

// ProxyErrorMessage is returned when a request could not be forwarded
const ProxyErrorMessage = "Error processing GraphQL request via proxy."

type proxyError struct {
	Message    string            `json:"message"`
	Extensions map[string]string `json:"extensions"`
}

type errorEnvelope struct {
	Errors []proxyError `json:"errors"`
}

// writeProxyError writes the generic 500 envelope
func writeProxyError(w http.ResponseWriter) {
	body, _ := json.Marshal(errorEnvelope{
		Errors: []proxyError{
			{
				Message:    ProxyErrorMessage,
				Extensions: map[string]string{"code": "INTERNAL_SERVER_ERROR"},
			},
		},
	})

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(http.StatusInternalServerError)
	w.Write(body)
}

// QueryHandler forwards a GraphQL request body upstream with the elevated
// credential. Any credential on the inbound request is discarded. The
// upstream status and body are passed through unchanged.
func (s *Server) QueryHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("requestId", middleware.RequestID(r.Context()))
	start := time.Now()

	rsp, err := s.forward(ctx, w, r)

	var (
		status int
		body   []byte
	)
	if rsp != nil {
		status, body = rsp.StatusCode(), rsp.RawResult()
	}

	s.options.Metrics.Forwarded(status, time.Since(start))
	if s.options.ResultCallbackFunc != nil {
		s.options.ResultCallbackFunc(ctx, r, status, body)
	}

	if err != nil {
		log.WithError(err).Errorf("failed to forward graphql request")
		writeProxyError(w)
		return
	}

	if contentType := rsp.ContentType(); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) forward(ctx context.Context, w http.ResponseWriter, r *http.Request) (*gqlclient.Response, error) {
	cred, err := s.authn.Resolve(r, auth.PolicyAlwaysElevated)
	if err != nil {
		return nil, err
	}

	in, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	if info, err := utils.PayloadOperation(in); err == nil {
		s.log.
			WithField("operationType", info.Type).
			WithField("operationName", info.Name).
			Debugf("forwarding graphql request")
	}

	header := cred.Header()
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = ContentTypeJSON
	}
	header.Set("Content-Type", contentType)

	rsp, err := s.client.Forward(ctx, in, header)
	if err != nil {
		return nil, errs.New(errs.ErrUpstream, "forward", err)
	}

	return rsp, nil
}

// WSHandler upgrades the connection, resolves its credential and bridges it
// to the upstream engine until either side closes
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	s.log.Debugf("upgrading connection to websocket")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an HTTP error
		s.log.WithError(err).Warnf("failed to establish websocket connection")
		return
	}

	if !s.track() {
		s.closeWS(ws, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.conns.Done()

	ws.SetReadLimit(s.options.ReadLimit)
	s.log.Debugf("client requested %q subprotocol", ws.Subprotocol())

	cred, err := s.authn.Resolve(r, auth.PolicyResolveFromSession)
	if err != nil {
		code, reason := errs.CloseCode(err)
		s.log.WithError(err).Warnf("rejecting websocket connection")
		s.closeWS(ws, code, reason)
		return
	}

	if err := s.bridge.Serve(s.ctx, ws, cred); err != nil && !errors.Is(err, errs.ErrUpstreamDial) {
		s.log.WithError(err).Errorf("bridge failed")
	}
}

// closeWS closes the websocket
func (s *Server) closeWS(ws *websocket.Conn, code int, reason string, v ...interface{}) {
	deadline := time.Now().Add(100 * time.Millisecond)
	msg := websocket.FormatCloseMessage(
		code,
		fmt.Sprintf(reason, v...),
	)

	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
		s.log.WithError(err).Debugf("failed to send close frame")
	}

	if err := ws.Close(); err != nil {
		s.log.WithError(err).Errorf("failed to close websocket")
	}
}
