package protocols

import (
	"errors"
	"testing"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParse(t *testing.T) {
	msg, err := Parse([]byte(`{"id":"1","type":"start","payload":{"query":"subscription { s }"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgStart, msg.Type())
	assert.Equal(t, "1", msg.ID())
	assert.True(t, msg.HasPayload())
	assert.JSONEq(t, `{"query":"subscription { s }"}`, string(msg.Payload()))

	msg, err = Parse([]byte(`{"type":"ka"}`))
	require.NoError(t, err)
	assert.Equal(t, MsgKeepAlive, msg.Type())
	assert.Empty(t, msg.ID())
	assert.False(t, msg.HasPayload())
	assert.Nil(t, msg.Payload())
}

func TestParseMalformed(t *testing.T) {
	for name, frame := range map[string]string{
		"invalid json":   `{"type":`,
		"not an object":  `["connection_init"]`,
		"missing type":   `{"id":"1"}`,
		"non string":     `{"type":5}`,
		"empty type":     `{"type":""}`,
		"plain text":     `hello`,
		"null":           `null`,
		"string literal": `"connection_init"`,
	} {
		_, err := Parse([]byte(frame))
		assert.True(t, errors.Is(err, errs.ErrMalformedMessage), name)
	}
}

func TestRetagKeepsPayloadBytes(t *testing.T) {
	// odd spacing and key order must survive the retag
	frame := []byte(`{"type":"data","id":"op-1","payload":{"data":{ "b":2,"a":[1, 2.50]}}}`)

	msg, err := Parse(frame)
	require.NoError(t, err)

	out, err := msg.Retag(MsgNext)
	require.NoError(t, err)

	assert.Equal(t, "next", gjson.GetBytes(out, "type").String())
	assert.Equal(t, "op-1", gjson.GetBytes(out, "id").String())
	assert.Equal(t, gjson.GetBytes(frame, "payload").Raw, gjson.GetBytes(out, "payload").Raw)

	// the source frame is untouched
	assert.Equal(t, MsgData, msg.Type())
	assert.Equal(t, "data", gjson.GetBytes(msg.Bytes(), "type").String())
}

func TestForwardable(t *testing.T) {
	for _, typ := range []MessageType{MsgStart, MsgSubscribe, MsgStop, MsgComplete} {
		assert.True(t, typ.Forwardable(), typ)
	}
	for _, typ := range []MessageType{MsgConnectionInit, MsgPing, MsgPong, MsgConnectionTerminate, "custom"} {
		assert.False(t, typ.Forwardable(), typ)
	}
}

func TestEndsOperation(t *testing.T) {
	for _, typ := range []MessageType{MsgStop, MsgComplete, MsgError} {
		assert.True(t, typ.EndsOperation(), typ)
	}
	for _, typ := range []MessageType{MsgStart, MsgSubscribe, MsgData, MsgNext, MsgConnectionError, "custom"} {
		assert.False(t, typ.EndsOperation(), typ)
	}
}

func TestOperationMessageMarshal(t *testing.T) {
	b, err := OperationMessage{Type: MsgConnectionAck}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_ack"}`, string(b))

	b, err = OperationMessage{
		Type:    MsgConnectionInit,
		Payload: InitPayload{Headers: map[string]string{"x-hasura-admin-secret": "s"}},
	}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_init","payload":{"headers":{"x-hasura-admin-secret":"s"}}}`, string(b))
}
