package protocols

// MessageType is a message type
type MessageType string

// Subprotocols
const (
	// GraphQLTransportWS is the newer protocol and is preferred when a client
	// offers both
	GraphQLTransportWS = "graphql-transport-ws"
	// GraphQLWS is the legacy protocol spoken by the upstream engine
	GraphQLWS = "graphql-ws"
)

// Subprotocols lists the client facing subprotocols in preference order
var Subprotocols = []string{GraphQLTransportWS, GraphQLWS}

const (
	// Common
	MsgConnectionInit MessageType = "connection_init"
	MsgConnectionAck  MessageType = "connection_ack"
	MsgError          MessageType = "error"
	MsgComplete       MessageType = "complete"

	// graphql-transport-ws specific
	MsgPing      MessageType = "ping"
	MsgPong      MessageType = "pong"
	MsgSubscribe MessageType = "subscribe"
	MsgNext      MessageType = "next"

	// graphql-ws specific - deprecated protocol
	MsgKeepAlive           MessageType = "ka"
	MsgConnectionError     MessageType = "connection_error"
	MsgConnectionTerminate MessageType = "connection_terminate"
	MsgStart               MessageType = "start"
	MsgData                MessageType = "data"
	MsgStop                MessageType = "stop"
)

// Forwardable returns true for client message types that are relayed
// upstream unchanged
func (t MessageType) Forwardable() bool {
	switch t {
	case MsgStart, MsgSubscribe, MsgStop, MsgComplete:
		return true
	}
	return false
}

// EndsOperation returns true for message types after which an operation id
// is no longer active
func (t MessageType) EndsOperation() bool {
	switch t {
	case MsgStop, MsgComplete, MsgError:
		return true
	}
	return false
}
