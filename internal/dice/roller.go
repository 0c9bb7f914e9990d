// Package dice provides the secure die roller and shuffle used by encounter tables.
package dice

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrInvalidDieSize is returned when a die has fewer than one face.
var ErrInvalidDieSize = errors.New("die size must be at least 1")

// Roller wraps a Source and logger to provide logged single-die rolls.
// All rolls are logged at debug level with die size and result.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Source returns the randomness source backing the roller.
func (r *Roller) Source() Source {
	return r.src
}

// RollDie rolls one die with dieSize faces.
//
// Precondition: dieSize >= 1.
// Postcondition: Returns a value in [1, dieSize], or ErrInvalidDieSize.
func (r *Roller) RollDie(dieSize int) (int, error) {
	if dieSize < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidDieSize, dieSize)
	}
	result := r.src.Intn(dieSize) + 1
	r.logger.Debug("die roll",
		zap.Int("die_size", dieSize),
		zap.Int("result", result),
	)
	return result, nil
}
