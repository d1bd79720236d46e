package bridge

import (
	"context"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/auth"
	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/metrics"
	"github.com/bhoriuchi/graphql-ws-bridge/utils"
	"github.com/bhoriuchi/graphql-ws-bridge/ws/manager"
	"github.com/bhoriuchi/graphql-ws-bridge/ws/protocols"
	"github.com/gorilla/websocket"
)

// State is the handshake state of a session
type State int

const (
	StateConnecting State = iota
	StateAwaitingClientInit
	StateAwaitingUpstreamAck
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingClientInit:
		return "awaiting-client-init"
	case StateAwaitingUpstreamAck:
		return "awaiting-upstream-ack"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type side int

const (
	sideNone side = iota
	sideClient
	sideUpstream
)

func (s side) String() string {
	switch s {
	case sideClient:
		return "client"
	case sideUpstream:
		return "upstream"
	}
	return "bridge"
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventClosed
)

// event is produced by a socket reader and consumed by the session loop
type event struct {
	from   side
	kind   eventKind
	data   []byte
	code   int
	reason string
	err    error
}

const eventBuffer = 16

// Session is one bridged connection. All fields are owned by the goroutine
// running the session loop.
type Session struct {
	id       string
	client   Socket
	upstream Socket
	cred     auth.Credential
	log      *logger.LogWrapper
	metrics  *metrics.Metrics
	ops      *manager.Manager

	state               State
	clientInitialized   bool
	upstreamInitialized bool
	acknowledged        bool

	closeCode   int
	closeReason string
	closedBy    side
}

func newSession(id string, client, upstream Socket, cred auth.Credential, log *logger.LogWrapper, m *metrics.Metrics) *Session {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	return &Session{
		id:       id,
		client:   client,
		upstream: upstream,
		cred:     cred,
		log:      log,
		metrics:  m,
		ops:      manager.NewManager(),
		state:    StateConnecting,
	}
}

// ID returns the correlation id of the session
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// start performs the upstream half of the handshake
func (s *Session) start() {
	initMsg, err := protocols.OperationMessage{
		Type: protocols.MsgConnectionInit,
		Payload: protocols.InitPayload{
			Headers: map[string]string{
				s.cred.HeaderName(): s.cred.HeaderValue(),
			},
		},
	}.Marshal()
	if err != nil {
		s.fail(errs.New(errs.ErrUpstreamDial, "encode connection_init", err))
		return
	}

	s.state = StateAwaitingClientInit
	if !s.write(sideUpstream, initMsg) {
		return
	}
	s.log.Tracef("sent CONNECTION_INIT upstream")
}

// run reads both sockets and handles their events until the session closes
// or ctx is done
func (s *Session) run(ctx context.Context) {
	events := make(chan event, eventBuffer)
	done := make(chan struct{})
	defer close(done)

	go s.readLoop(sideClient, s.client, events, done)
	go s.readLoop(sideUpstream, s.upstream, events, done)

	for s.state != StateClosed {
		select {
		case ev := <-events:
			s.handle(ev)
		case <-ctx.Done():
			s.terminate(websocket.CloseGoingAway, "server shutting down", sideNone)
		}
	}
}

func (s *Session) readLoop(from side, sock Socket, events chan<- event, done <-chan struct{}) {
	for {
		_, data, err := sock.ReadMessage()

		ev := event{from: from, kind: eventMessage, data: data}
		if err != nil {
			code, reason := closeInfo(err)
			ev = event{from: from, kind: eventClosed, code: code, reason: reason, err: err}
		}

		select {
		case events <- ev:
		case <-done:
			return
		}

		if err != nil {
			return
		}
	}
}

// handle applies a single event
func (s *Session) handle(ev event) {
	if s.state == StateClosed {
		return
	}

	switch ev.kind {
	case eventClosed:
		s.log.
			WithField("side", ev.from.String()).
			WithField("code", ev.code).
			Debugf("socket closed: %s", ev.reason)
		code, reason := sendableClose(ev.code, ev.reason)
		s.terminate(code, reason, ev.from)
	case eventMessage:
		switch ev.from {
		case sideClient:
			s.handleClient(ev.data)
		case sideUpstream:
			s.handleUpstream(ev.data)
		}
	}
}

// handleClient applies a message from the client
func (s *Session) handleClient(data []byte) {
	msg, err := protocols.Parse(data)
	if err != nil {
		s.metrics.Message(metrics.ClientToUpstream, "", metrics.ActionMalformed)
		if !s.clientInitialized {
			s.fail(errs.New(errs.ErrProtocolViolation, "handle client message", err))
			return
		}
		s.log.WithError(err).Warnf("skipping malformed client message")
		return
	}

	typ := msg.Type()
	switch {
	case typ == protocols.MsgConnectionInit:
		if s.clientInitialized {
			s.fail(errs.Newf(errs.ErrTooManyInitialisationRequests, "handle client message", "duplicate connection_init"))
			return
		}
		s.log.Tracef("received CONNECTION_INIT from client")
		s.clientInitialized = true
		s.metrics.Message(metrics.ClientToUpstream, string(typ), metrics.ActionSwallowed)
		s.join()

	case !s.clientInitialized:
		s.fail(errs.Newf(errs.ErrProtocolViolation, "handle client message", "received %s before connection_init", typ))

	case typ == protocols.MsgPing:
		pong, err := protocols.OperationMessage{Type: protocols.MsgPong}.Marshal()
		if err != nil {
			s.log.WithError(err).Errorf("failed to encode pong")
			return
		}
		s.metrics.Message(metrics.ClientToUpstream, string(typ), metrics.ActionAnswered)
		s.write(sideClient, pong)

	case typ == protocols.MsgPong:
		s.metrics.Message(metrics.ClientToUpstream, string(typ), metrics.ActionSwallowed)

	case typ.Forwardable():
		if !s.acknowledged {
			s.fail(errs.Newf(errs.ErrProtocolViolation, "handle client message", "received %s before connection_ack", typ))
			return
		}
		s.trackClient(msg)
		if s.write(sideUpstream, msg.Bytes()) {
			s.metrics.Message(metrics.ClientToUpstream, string(typ), metrics.ActionForwarded)
		}

	default:
		s.log.WithField("type", string(typ)).Warnf("dropping client message with unsupported type")
		s.metrics.Message(metrics.ClientToUpstream, string(typ), metrics.ActionDropped)
	}
}

// trackClient records operations started and ended by the client
func (s *Session) trackClient(msg *protocols.RawMessage) {
	typ := msg.Type()
	switch {
	case typ == protocols.MsgStart || typ == protocols.MsgSubscribe:
		op := &manager.Operation{ID: msg.ID(), StartedAt: time.Now()}
		opLog := s.log.WithField("operationId", msg.ID())

		if msg.HasPayload() {
			if info, err := utils.PayloadOperation(msg.Payload()); err == nil {
				op.Type = info.Type
				op.OperationName = info.Name
				opLog = opLog.WithField("operationType", info.Type).WithField("operationName", info.Name)
			}
		}

		if err := s.ops.Start(op); err != nil {
			opLog.WithError(err).Debugf("operation not tracked")
			return
		}
		s.metrics.OperationStarted()
		opLog.Debugf("operation started")

	case typ.EndsOperation():
		s.endOperation(msg.ID())
	}
}

func (s *Session) endOperation(id string) {
	if op := s.ops.End(id); op != nil {
		s.metrics.OperationsEnded(1)
		s.log.
			WithField("operationId", id).
			WithField("duration", time.Since(op.StartedAt).String()).
			Debugf("operation ended")
	}
}

// handleUpstream applies a message from the upstream engine
func (s *Session) handleUpstream(data []byte) {
	msg, err := protocols.Parse(data)
	if err != nil {
		s.metrics.Message(metrics.UpstreamToClient, "", metrics.ActionMalformed)
		s.log.WithError(err).Warnf("skipping malformed upstream message")
		return
	}

	typ := msg.Type()
	switch typ {
	case protocols.MsgConnectionAck:
		if s.upstreamInitialized {
			s.log.Debugf("ignoring duplicate upstream CONNECTION_ACK")
			s.metrics.Message(metrics.UpstreamToClient, string(typ), metrics.ActionDropped)
			return
		}
		s.log.Tracef("received CONNECTION_ACK from upstream")
		s.upstreamInitialized = true
		s.metrics.Message(metrics.UpstreamToClient, string(typ), metrics.ActionSwallowed)
		s.join()

	case protocols.MsgKeepAlive:
		s.metrics.Message(metrics.UpstreamToClient, string(typ), metrics.ActionSwallowed)

	case protocols.MsgData:
		out, err := msg.Retag(protocols.MsgNext)
		action := metrics.ActionRetagged
		if err != nil {
			s.log.WithError(err).Warnf("forwarding untranslated data message")
			out = msg.Bytes()
			action = metrics.ActionForwarded
		}
		if s.write(sideClient, out) {
			s.metrics.Message(metrics.UpstreamToClient, string(typ), action)
		}

	default:
		if typ.EndsOperation() {
			s.endOperation(msg.ID())
		}
		if typ == protocols.MsgConnectionError {
			s.log.WithField("payload", string(msg.Payload())).Warnf("upstream rejected connection_init")
		}
		if s.write(sideClient, msg.Bytes()) {
			s.metrics.Message(metrics.UpstreamToClient, string(typ), metrics.ActionForwarded)
		}
	}
}

// join acknowledges the client once both handshakes are complete. It sends
// at most one acknowledgement per session.
func (s *Session) join() {
	switch {
	case s.acknowledged:
		return
	case !s.clientInitialized:
		s.state = StateAwaitingClientInit
		return
	case !s.upstreamInitialized:
		s.state = StateAwaitingUpstreamAck
		return
	}

	ack, err := protocols.OperationMessage{Type: protocols.MsgConnectionAck}.Marshal()
	if err != nil {
		s.fail(errs.New(errs.ErrUpstream, "encode connection_ack", err))
		return
	}

	s.acknowledged = true
	if !s.write(sideClient, ack) {
		return
	}

	s.state = StateRelaying
	s.log.Debugf("connection acknowledged")
}

// write sends a text message. A failed write tears the session down as if
// the peer had disconnected.
func (s *Session) write(to side, data []byte) bool {
	sock := s.socket(to)

	_ = sock.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.WithError(err).WithField("side", to.String()).Debugf("write failed")
		s.terminate(websocket.CloseGoingAway, reasonPeerDisconnected, to)
		return false
	}

	return true
}

func (s *Session) socket(sd side) Socket {
	if sd == sideClient {
		return s.client
	}
	return s.upstream
}

// fail closes both sockets with the close code for err
func (s *Session) fail(err error) {
	code, reason := errs.CloseCode(err)
	s.log.WithError(err).WithField("code", code).Warnf("closing connection")
	s.terminate(code, reason, sideNone)
}

// terminate closes both sockets with code and reason. The side that
// initiated the close already has a close handshake in progress and is only
// closed locally.
func (s *Session) terminate(code int, reason string, initiator side) {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.closeCode = code
	s.closeReason = reason
	s.closedBy = initiator

	for _, sd := range []side{sideClient, sideUpstream} {
		sock := s.socket(sd)
		if sd == initiator {
			_ = sock.Close()
			continue
		}
		closeSocket(sock, code, reason)
	}

	open := s.ops.EndAll()
	s.metrics.OperationsEnded(len(open))

	s.log.
		WithField("code", code).
		WithField("initiator", initiator.String()).
		WithField("openOperations", len(open)).
		Infof("connection closed: %s", reason)
}
