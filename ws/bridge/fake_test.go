package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type closeFrame struct {
	code   int
	reason string
}

type readResult struct {
	data []byte
	err  error
}

// fakeSocket is an in-memory Socket
type fakeSocket struct {
	mu          sync.Mutex
	subprotocol string
	written     [][]byte
	closeFrames []closeFrame
	closed      bool
	writeErr    error

	reads    chan readResult
	closedCh chan struct{}
}

func newFakeSocket(subprotocol string) *fakeSocket {
	return &fakeSocket{
		subprotocol: subprotocol,
		reads:       make(chan readResult, 16),
		closedCh:    make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.data, nil
	case <-f.closedCh:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if messageType == websocket.CloseMessage && len(data) >= 2 {
		f.closeFrames = append(f.closeFrames, closeFrame{
			code:   int(binary.BigEndian.Uint16(data[:2])),
			reason: string(data[2:]),
		})
	}
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error {
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeSocket) Subprotocol() string {
	return f.subprotocol
}

func (f *fakeSocket) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.written))
	for i, b := range f.written {
		out[i] = string(b)
	}
	return out
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSocket) frames() []closeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closeFrame(nil), f.closeFrames...)
}

// fakeDialer hands out a prepared upstream socket
type fakeDialer struct {
	socket *fakeSocket
	err    error
	url    string
	header http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	d.url = url
	d.header = header
	if d.err != nil {
		return nil, d.err
	}
	return d.socket, nil
}
