// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/bb84server/models"
)

// GormPostgreSQL archives rounds through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL connects and migrates the round table.
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormRoundRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) SaveRound(ctx context.Context, record models.RoundRecord) error {
	row := models.NewGormRoundRecord(record)
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *GormPostgreSQL) ListRounds(ctx context.Context, limit int) ([]models.RoundRecord, error) {
	var rows []models.GormRoundRecord
	q := p.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.RoundRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r, err := rows[i].Record()
		if err != nil {
			return nil, fmt.Errorf("decode round %d: %w", rows[i].Round, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
