// services/history_service.go
package services

import (
	"context"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/wfunc/bb84server/models"
	"github.com/wfunc/bb84server/persistence"
)

// HistoryService derives key-exchange statistics from the round archive.
type HistoryService struct {
	archive persistence.Archive
}

func NewHistoryService(archive persistence.Archive) *HistoryService {
	return &HistoryService{archive: archive}
}

// Summary sifts the most recent limit rounds (all when limit <= 0) and reports
// the quantum bit error rate over the bits Alice and Bob kept.
func (s *HistoryService) Summary(ctx context.Context, limit int, withRecords bool) (models.Summary, error) {
	records, err := s.archive.ListRounds(ctx, limit)
	if err != nil {
		return models.Summary{}, err
	}

	summary := Summarize(records)
	if withRecords {
		summary.Records = records
	}
	return summary, nil
}

// Summarize computes a Summary over records without touching the archive.
func Summarize(records []models.RoundRecord) models.Summary {
	var (
		key     strings.Builder
		errFlag []float64
		sum     = models.Summary{Rounds: len(records)}
	)
	for _, r := range records {
		if r.Intercepted {
			sum.Intercepted++
		}
		if !r.Sifted() {
			continue
		}
		sum.Sifted++
		if r.Mismatch() {
			sum.Errors++
			errFlag = append(errFlag, 1)
		} else {
			errFlag = append(errFlag, 0)
		}
		key.WriteByte('0' + byte(r.BobValue))
	}
	if len(errFlag) > 0 {
		sum.QBER = stat.Mean(errFlag, nil)
	}
	sum.SiftedKey = key.String()
	return sum
}
