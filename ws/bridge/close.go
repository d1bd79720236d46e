package bridge

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WriteTimeout bounds every write to either socket
	WriteTimeout = 10 * time.Second
	// maximum close frame reason length (125 byte payload minus the code)
	maxCloseReason = 123

	reasonPeerDisconnected = "peer disconnected"
)

// closeInfo extracts the close code and reason from a read error. A read
// error that is not a close frame is reported as an abnormal closure.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}

// sendableClose maps codes that must not appear in a close frame to codes
// that may
func sendableClose(code int, reason string) (int, string) {
	switch code {
	case websocket.CloseNoStatusReceived:
		return websocket.CloseNormalClosure, reason
	case 0, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return websocket.CloseGoingAway, reasonPeerDisconnected
	}

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	return code, reason
}

// closeSocket sends a close frame and closes sock
func closeSocket(sock Socket, code int, reason string) {
	code, reason = sendableClose(code, reason)
	_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(WriteTimeout))
	_ = sock.Close()
}
