package room

import (
	"context"
	"time"

	"github.com/wfunc/bb84server/models"
)

// Broadcaster defines the interface for pushing a packet to every subscriber.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) error
}

// Archive receives completed rounds.
type Archive interface {
	SaveRound(ctx context.Context, record models.RoundRecord) error
}

// Metrics observes command processing.
type Metrics interface {
	ObserveIntent(intent, outcome string, took time.Duration)
	SetConnectedPlayers(n int)
	IncRoundsCompleted()
}
