// Package numbering allocates contract numbers of the form
// <prefix><yyyy><letter><6-digit sequence>.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

// MaxSequence is the largest sequence a six digit number can carry.
const MaxSequence = 999999

const (
	LetterClientDispatch = "D"
	LetterClientOther    = "C"
	LetterStaff          = "S"
)

// Tx is the slice of a store transaction allocation needs.
type Tx interface {
	Company(ctx context.Context) (*models.Company, error)
	NextSequence(ctx context.Context, letter string, year int) (int, error)
}

type Service struct {
	loc *time.Location
	now func() time.Time
}

// New returns a service that dates numbers in loc.
func New(loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{loc: loc, now: time.Now}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{loc: s.loc, now: now}
}

// Letter picks the sequence letter of a contract.
func Letter(side models.Side, typeCode string) string {
	if side == models.SideStaff {
		return LetterStaff
	}
	if typeCode == models.ContractTypeDispatch {
		return LetterClientDispatch
	}
	return LetterClientOther
}

func Format(prefix string, year int, letter string, seq int) string {
	return fmt.Sprintf("%s%04d%s%06d", prefix, year, letter, seq)
}

// Allocate takes the next number for the tenant of ctx. It must run inside
// the transaction that stores the number: the sequence row stays locked
// until that transaction ends, and a rollback returns the value.
func (s *Service) Allocate(ctx context.Context, tx Tx, side models.Side, typeCode string) (string, error) {
	company, err := tx.Company(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("company")
		}
		return "", fmt.Errorf("load company: %w", err)
	}

	letter := Letter(side, typeCode)
	year := s.now().In(s.loc).Year()

	seq, err := tx.NextSequence(ctx, letter, year)
	if errors.Is(err, store.ErrLocked) {
		slog.Warn("contract number sequence locked", "letter", letter, "year", year)
		return "", apperr.Wrap(apperr.KindNumberingExhausted, "contract number sequence is busy", err)
	}
	if err != nil {
		return "", fmt.Errorf("allocate contract number: %w", err)
	}
	if seq > MaxSequence {
		slog.Error("contract number sequence exhausted", "letter", letter, "year", year)
		return "", apperr.New(apperr.KindNumberingExhausted, fmt.Sprintf("no contract numbers left for %s%d", letter, year))
	}
	return Format(company.NumberPrefix, year, letter, seq), nil
}
