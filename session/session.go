package session

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn this package relies on. Defining
// it as an interface keeps the single-writer/single-reader discipline
// testable without a real network socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is a live bidirectional channel bound to one device id. Writes
// are serialized through outbox so exactly one goroutine ever calls
// WriteMessage on the underlying connection, per spec.md §5's single-writer
// invariant.
type Session struct {
	deviceID string
	conn     wsConn

	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSession(deviceID string, conn wsConn, queueCapacity int) *Session {
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	return &Session{
		deviceID: deviceID,
		conn:     conn,
		outbox:   make(chan []byte, queueCapacity),
		done:     make(chan struct{}),
	}
}

// enqueue attempts a non-blocking send into the outbound queue. On overflow
// the newest frame is dropped (per spec.md §4.3) and the bool return
// reports false. outbox is never closed (only done is), so this never
// races with shutdown into a send-on-closed-channel panic.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

// runOutboundPump drains the outbox to the underlying connection. It is the
// sole writer for this session; it exits when done fires or a write fails.
func (s *Session) runOutboundPump() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbox:
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.closeOnce()
				return
			}
		}
	}
}

// runInboundLoop reads frames until the connection errors or closes, handing
// each decoded frame to onFrame. A frame that fails to decode is reported to
// onDecodeError and dropped, per spec.md's "unknown frames are logged and
// dropped." It is the sole reader for this session.
func (s *Session) runInboundLoop(onFrame func(InboundFrame), onDecodeError func(error)) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.closeOnce()
			return
		}
		frame, decodeErr := decodeInbound(raw)
		if decodeErr != nil {
			if onDecodeError != nil {
				onDecodeError(decodeErr)
			}
			continue
		}
		onFrame(frame)
	}
}

// closeOnce closes done exactly once, signalling the manager that this
// session has ended (either side closed the connection).
func (s *Session) closeOnce() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Done reports end-of-session to callers that need to wait on it.
func (s *Session) Done() <-chan struct{} { return s.done }

func marshalFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}
