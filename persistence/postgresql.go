// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/bb84server/models"
	"github.com/wfunc/bb84server/quantum"
)

// PostgreSQL archives rounds through database/sql and lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL connects and creates the round table if needed.
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id SERIAL PRIMARY KEY,
            round INTEGER NOT NULL,
            alice_bit SMALLINT NOT NULL,
            alice_basis VARCHAR(16) NOT NULL,
            intercepted BOOLEAN NOT NULL DEFAULT FALSE,
            eve_basis VARCHAR(16) NOT NULL,
            eve_value SMALLINT,
            bob_basis VARCHAR(16) NOT NULL,
            bob_value SMALLINT NOT NULL,
            completed_at TIMESTAMPTZ NOT NULL
        )
    `, models.RoundRecordsTable))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
        CREATE INDEX IF NOT EXISTS idx_%[1]s_round ON %[1]s(round);
        CREATE INDEX IF NOT EXISTS idx_%[1]s_completed_at ON %[1]s(completed_at);
    `, models.RoundRecordsTable))
	return err
}

func (p *PostgreSQL) SaveRound(ctx context.Context, r models.RoundRecord) error {
	var eveValue sql.NullInt16
	if r.EveValue != nil {
		eveValue = sql.NullInt16{Int16: int16(*r.EveValue), Valid: true}
	}

	query := fmt.Sprintf(`
        INSERT INTO %s
            (round, alice_bit, alice_basis, intercepted, eve_basis, eve_value, bob_basis, bob_value, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, models.RoundRecordsTable)
	_, err := p.db.ExecContext(ctx, query,
		r.Round,
		int16(r.AliceBit),
		r.AliceBasis.String(),
		r.Intercepted,
		r.EveBasis.String(),
		eveValue,
		r.BobBasis.String(),
		int16(r.BobValue),
		r.CompletedAt,
	)
	return err
}

func (p *PostgreSQL) ListRounds(ctx context.Context, limit int) ([]models.RoundRecord, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	// LIMIT NULL returns every row.
	query := fmt.Sprintf(`
        SELECT round, alice_bit, alice_basis, intercepted, eve_basis, eve_value, bob_basis, bob_value, completed_at
        FROM (
            SELECT * FROM %s ORDER BY id DESC LIMIT $1
        ) recent
        ORDER BY id ASC
    `, models.RoundRecordsTable)
	rows, err := p.db.QueryContext(ctx, query, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoundRecord
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRound(rows *sql.Rows) (models.RoundRecord, error) {
	var (
		r                              models.RoundRecord
		aliceBit, bobValue             int16
		aliceBasis, eveBasis, bobBasis string
		eveValue                       sql.NullInt16
	)
	if err := rows.Scan(&r.Round, &aliceBit, &aliceBasis, &r.Intercepted, &eveBasis, &eveValue,
		&bobBasis, &bobValue, &r.CompletedAt); err != nil {
		return r, err
	}

	r.AliceBit = quantum.Bit(aliceBit)
	r.BobValue = quantum.Bit(bobValue)
	if eveValue.Valid {
		v := quantum.Bit(eveValue.Int16)
		r.EveValue = &v
	}
	for _, b := range []struct {
		dst  *quantum.Basis
		name string
	}{{&r.AliceBasis, aliceBasis}, {&r.EveBasis, eveBasis}, {&r.BobBasis, bobBasis}} {
		if err := b.dst.UnmarshalText([]byte(b.name)); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
