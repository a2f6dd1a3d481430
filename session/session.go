// session/session.go
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/network"
	"github.com/wfunc/bb84server/state"
)

// SendQueueSize is how many outbound packets a session buffers before it is
// treated as stalled and dropped.
const SendQueueSize = 64

var (
	// ErrForbiddenRoleAction is returned when a session issues an intent owned by another role.
	ErrForbiddenRoleAction = errors.New("forbidden role action")
	// ErrRoleAlreadyHeld is returned when a session that already holds a role joins again.
	ErrRoleAlreadyHeld = errors.New("session already holds a role")
	// ErrSendQueueFull is returned when a session cannot keep up with its outbound traffic.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrSessionClosed is returned when sending on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

type outbound struct {
	msgID uint16
	data  []byte
}

// Session is one subscriber connection and the role it was assigned, if any.
// Outbound packets go through a per-session queue drained by its own writer,
// so a slow peer never blocks the sender.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	role       state.Role
	hasRole    bool
	mutex      sync.RWMutex

	queue     chan outbound
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps conn and starts its writer. Close stops it.
func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		queue:      make(chan outbound, SendQueueSize),
		closed:     make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// AssignRole binds role to the session. A session holds at most one role.
func (s *Session) AssignRole(role state.Role) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.hasRole {
		return fmt.Errorf("%w: %s", ErrRoleAlreadyHeld, s.role)
	}
	s.role = role
	s.hasRole = true
	return nil
}

// Role returns the assigned role.
func (s *Session) Role() (state.Role, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.role, s.hasRole
}

// ReleaseRole unbinds the role and returns what was held.
func (s *Session) ReleaseRole() (state.Role, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	role, had := s.role, s.hasRole
	s.hasRole = false
	return role, had
}

// Authorize checks that the session acts as required.
func (s *Session) Authorize(required state.Role) error {
	role, ok := s.Role()
	if !ok {
		return fmt.Errorf("%w: join as %s first", ErrForbiddenRoleAction, required)
	}
	if role != required {
		return fmt.Errorf("%w: %s cannot act as %s", ErrForbiddenRoleAction, role, required)
	}
	return nil
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

// LastActive is when the peer last sent a packet.
func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Send queues a packet without blocking. A full queue means the peer has
// stalled: the session is closed and ErrSendQueueFull returned.
func (s *Session) Send(msgID uint16, data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.queue <- outbound{msgID: msgID, data: data}:
		return nil
	default:
		logger.Log.Warnf("Session %s send queue full, dropping connection", s.ID)
		s.Close()
		return ErrSendQueueFull
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.queue:
			if err := s.Conn.Send(msg.msgID, msg.data); err != nil {
				logger.Log.Debugf("Session %s write failed: %v", s.ID, err)
				s.Close()
				return
			}
		}
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Close stops the writer and closes the connection. Queued packets are dropped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// All returns a snapshot of every session, safe to range over without the lock.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
