package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// SessionState tracks a session through its lifecycle. Transitions only move
// forward.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

// Attributes are optional client-supplied codes captured at handshake. They
// are fixed for the lifetime of the session.
type Attributes struct {
	AccessCode string
	SecretCode string
	UserCode   string
	PersonCode string
}

// Session is one authenticated websocket connection.
type Session struct {
	ID         string
	UserID     string
	UserName   string
	Role       string
	AppCode    string
	Attributes Attributes

	conn    *websocket.Conn
	out     chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	state  SessionState
	joined map[int64]struct{}

	closeOnce sync.Once
	done      chan struct{}

	writeTimeout time.Duration
	pingInterval time.Duration
}

func newSession(conn *websocket.Conn, userID, userName, role, appCode string, bufSize int, limiter *rate.Limiter, writeTimeout, pingInterval time.Duration) *Session {
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		UserName:     userName,
		Role:         role,
		AppCode:      appCode,
		conn:         conn,
		out:          make(chan []byte, bufSize),
		limiter:      limiter,
		state:        StateAuthenticated,
		joined:       make(map[int64]struct{}),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st > s.state {
		s.state = st
	}
}

// markJoined records a conversation subscription held by this session.
func (s *Session) markJoined(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined[conversationID] = struct{}{}
}

// markLeft forgets a conversation subscription.
func (s *Session) markLeft(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joined, conversationID)
}

// joinedConversations snapshots the session's subscriptions.
func (s *Session) joinedConversations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	return out
}

// enqueue buffers a frame for delivery. A full buffer drops the frame rather
// than blocking the broadcaster.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

// close releases the connection. Safe to call more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateDisconnected)
		close(s.done)
		s.conn.Close()
	})
}

// writeLoop drains the outbound buffer and keeps the connection alive with
// pings. It owns all writes to the connection.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case data, ok := <-s.out:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
