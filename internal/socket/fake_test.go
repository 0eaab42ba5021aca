// ABOUTME: In-memory Conn and Dialer doubles for socket unit tests
// ABOUTME: Lets tests script inbound frames, server closes, dial failures and write errors

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("use of closed network connection")

type fakeConn struct {
	inbound chan []byte
	remote  chan error
	done    chan struct{}

	mu        sync.Mutex
	writes    [][]byte
	controls  [][]byte
	closed    bool
	writeErr  error
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		remote:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.done:
		return 0, nil, errConnClosed
	default:
	}
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case err := <-c.remote:
		return 0, nil, err
	case <-c.done:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.controls = append(c.controls, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// push delivers an inbound frame.
func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.inbound <- data
}

// serverClose simulates the peer closing with code.
func (c *fakeConn) serverClose(code int, text string) {
	c.remote <- &websocket.CloseError{Code: code, Text: text}
}

// drop simulates a network failure without a close frame.
func (c *fakeConn) drop() {
	c.remote <- errors.New("connection reset by peer")
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// chatMessages returns the text of every chat frame written, in order.
func (c *fakeConn) chatMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.writes {
		var f struct {
			Message *string `json:"message"`
		}
		if json.Unmarshal(w, &f) == nil && f.Message != nil {
			out = append(out, *f.Message)
		}
	}
	return out
}

func (c *fakeConn) pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if string(w) == `{"type":"ping"}` {
			n++
		}
	}
	return n
}

func (c *fakeConn) closeFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.controls)
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	headers  []http.Header
	failNext int
	failAll  bool
	gate     chan struct{}
	dialed   chan *fakeConn
	attempts int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 64)}
}

// gated makes every Dial block until release is called.
func (d *fakeDialer) gated() *fakeDialer {
	d.gate = make(chan struct{})
	return d
}

func (d *fakeDialer) release() {
	close(d.gate)
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, header http.Header) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	d.attempts++
	d.headers = append(d.headers, header.Clone())
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = v
}

func (d *fakeDialer) dialAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) lastHeader() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.headers) == 0 {
		return nil
	}
	return d.headers[len(d.headers)-1]
}

// next waits for the next successful dial.
func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// recorder captures observer callbacks.
type recorder struct {
	mu     sync.Mutex
	states []State
	frames []Frame
	errs   []error
	closes []int
	opens  int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.opens++
		},
		OnClose: func(code int, _ string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closes = append(r.closes, code)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnMessage: func(f Frame) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.frames = append(r.frames, f)
		},
		OnStateChange: func(st State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, st)
		},
	}
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) frameLog() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *recorder) closeCodes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.closes...)
}

func (r *recorder) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}
