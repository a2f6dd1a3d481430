// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/bb84server/config"
	"github.com/wfunc/bb84server/models"
)

// Archive stores completed rounds. It never holds live round state.
type Archive interface {
	SaveRound(ctx context.Context, record models.RoundRecord) error
	// ListRounds returns the most recent limit rounds, oldest first. A
	// non-positive limit returns everything.
	ListRounds(ctx context.Context, limit int) ([]models.RoundRecord, error)
	Close() error
}

var (
	ErrUnknownDriver = errors.New("unknown archive driver")
)

// Open builds the archive selected by cfg.Driver.
func Open(cfg config.ArchiveConfig) (Archive, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(0), nil
	case "postgres":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
