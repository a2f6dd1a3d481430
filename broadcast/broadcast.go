// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) error
	SendTo(sessionID string, msgID uint16, data []byte) error
}

// SessionBroadcaster pushes packets to the sessions held by a session.Manager.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

// BroadcastToAll queues data for every subscriber. A stalled or broken
// subscriber is logged and skipped; its read loop notices the closed
// connection and cleans up.
func (b *SessionBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	b.sendEach(b.sessionManager.All(), msgID, data)
	return nil
}

// SendTo queues data for one session.
func (b *SessionBroadcaster) SendTo(sessionID string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Send(msgID, data)
}

func (b *SessionBroadcaster) sendEach(sessions []*session.Session, msgID uint16, data []byte) {
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Warnf("send msg %d to session %s failed: %v", msgID, s.GetID(), err)
		}
	}
}
