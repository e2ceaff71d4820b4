package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/rpawatch/errors"
)

// Conn is the message-level socket. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn to a websocket URL
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 15 * time.Second
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial failed")
	}
	return conn, nil
}

// Session is one authenticated, handshaken hub connection. Writes are
// serialized; reads must come from a single goroutine.
type Session struct {
	conn Conn
	mu   sync.Mutex
}

// Connect authenticates, dials and sends the protocol handshake
func Connect(ctx context.Context, auth Authenticator, dialer Dialer) (*Session, error) {
	creds, err := auth.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := dialer.Dial(ctx, creds.URL)
	if err != nil {
		return nil, err
	}

	s := &Session{conn: conn}
	if err := s.write(Handshake()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake failed")
	}
	return s, nil
}

// Invoke sends an invocation frame
func (s *Session) Invoke(target, invocationID string, args ...interface{}) error {
	b, err := Invocation(target, invocationID, args...)
	if err != nil {
		return err
	}
	if err := s.write(b); err != nil {
		return errors.Wrapf(err, "failed to send %s", target)
	}
	return nil
}

// Read returns the frames of the next websocket message
func (s *Session) Read() (frames []Frame, dropped int, err error) {
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, 0, err
	}
	frames, dropped = SplitFrames(msg)
	return frames, dropped, nil
}

// Close closes the underlying connection
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
