package audio

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bgvfd/radiod/pkg/logging"
)

// Sink accepts fixed-cadence audio blocks for transport. Write must not
// block the production path; implementations drop rather than stall.
type Sink interface {
	Write(block Block) error
	Close() error
}

// BufferSink collects blocks in memory. Used by tests and by the
// priming path before a transport is attached.
type BufferSink struct {
	mutex  sync.Mutex
	blocks []Block
	closed bool
}

// NewBufferSink creates an in-memory sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

// Write appends a block.
func (s *BufferSink) Write(block Block) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	s.blocks = append(s.blocks, block)
	return nil
}

// Blocks returns a copy of everything written so far.
func (s *BufferSink) Blocks() []Block {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Len returns the number of blocks written.
func (s *BufferSink) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.blocks)
}

// Close marks the sink closed.
func (s *BufferSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// WebSocketSink broadcasts PCM frames to connected listeners. Each
// listener has a bounded send queue; a listener that cannot keep up is
// disconnected rather than allowed to stall the stream.
type WebSocketSink struct {
	mutex     sync.RWMutex
	listeners map[*wsListener]struct{}
	closed    bool
}

type wsListener struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

const listenerQueueDepth = 16 // ~320ms of audio

// NewWebSocketSink creates a sink with no listeners attached.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{listeners: map[*wsListener]struct{}{}}
}

// Attach registers a websocket connection as a listener and starts its
// writer. The connection is owned by the sink from this point.
func (s *WebSocketSink) Attach(conn *websocket.Conn) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}

	l := &wsListener{
		conn: conn,
		send: make(chan []byte, listenerQueueDepth),
	}
	s.listeners[l] = struct{}{}
	go s.writeLoop(l)
	logging.Infof("audio", "listener attached (%d total)", len(s.listeners))
	return nil
}

// ListenerCount returns the number of attached listeners.
func (s *WebSocketSink) ListenerCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.listeners)
}

// Write broadcasts the block to every listener. Slow listeners are
// dropped; Write itself never blocks.
func (s *WebSocketSink) Write(block Block) error {
	frame := block.PCM16Bytes()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	for l := range s.listeners {
		select {
		case l.send <- frame:
		default:
			go s.detach(l, "send queue full")
		}
	}
	return nil
}

func (s *WebSocketSink) writeLoop(l *wsListener) {
	for frame := range l.send {
		if err := l.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.detach(l, err.Error())
			return
		}
	}
	l.conn.Close()
}

func (s *WebSocketSink) detach(l *wsListener, reason string) {
	s.mutex.Lock()
	_, present := s.listeners[l]
	delete(s.listeners, l)
	s.mutex.Unlock()

	if present {
		logging.Infof("audio", "listener detached: %s", reason)
	}
	l.once.Do(func() { close(l.send) })
}

// Close disconnects all listeners.
func (s *WebSocketSink) Close() error {
	s.mutex.Lock()
	ls := make([]*wsListener, 0, len(s.listeners))
	for l := range s.listeners {
		ls = append(ls, l)
	}
	s.listeners = map[*wsListener]struct{}{}
	s.closed = true
	s.mutex.Unlock()

	for _, l := range ls {
		l.once.Do(func() { close(l.send) })
	}
	return nil
}
