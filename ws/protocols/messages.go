package protocols

import (
	"encoding/json"
	"fmt"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RawMessage is a single text frame. Only the envelope fields are read; the
// original bytes are kept so frames can be relayed without re-encoding.
type RawMessage struct {
	raw  []byte
	typ  MessageType
	id   string
	body gjson.Result
}

// Parse validates the envelope of a frame. It fails with ErrMalformedMessage
// when the frame is not a JSON object with a string type.
func Parse(data []byte) (*RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, errs.Newf(errs.ErrMalformedMessage, "parse message", "invalid json")
	}

	body := gjson.ParseBytes(data)
	if !body.IsObject() {
		return nil, errs.Newf(errs.ErrMalformedMessage, "parse message", "expected an object but got %s", body.Type)
	}

	typ := body.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, errs.Newf(errs.ErrMalformedMessage, "parse message", "message is missing the 'type' property")
	}

	return &RawMessage{
		raw:  data,
		typ:  MessageType(typ.Str),
		id:   body.Get("id").String(),
		body: body,
	}, nil
}

// Type returns the message type
func (m *RawMessage) Type() MessageType {
	return m.typ
}

// ID returns the operation id or an empty string
func (m *RawMessage) ID() string {
	return m.id
}

// Bytes returns the frame exactly as received
func (m *RawMessage) Bytes() []byte {
	return m.raw
}

// HasPayload returns true if the payload field exists and is not null
func (m *RawMessage) HasPayload() bool {
	p := m.body.Get("payload")
	return p.Exists() && p.Type != gjson.Null
}

// Payload returns the raw payload bytes
func (m *RawMessage) Payload() []byte {
	p := m.body.Get("payload")
	if !p.Exists() {
		return nil
	}
	return []byte(p.Raw)
}

// Retag returns a copy of the frame with its type replaced. Every other
// field, including the payload, keeps its original bytes.
func (m *RawMessage) Retag(typ MessageType) ([]byte, error) {
	out, err := sjson.SetBytes(append([]byte(nil), m.raw...), "type", string(typ))
	if err != nil {
		return nil, fmt.Errorf("retag %s as %s: %w", m.typ, typ, err)
	}
	return out, nil
}

// OperationMessage is a message generated by the proxy itself
type OperationMessage struct {
	ID      string      `json:"id,omitempty"`
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Marshal encodes the message
func (m OperationMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// InitPayload is the connection_init payload sent upstream
type InitPayload struct {
	Headers map[string]string `json:"headers"`
}
