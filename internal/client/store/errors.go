package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrIntegrity matches every IntegrityError via errors.Is.
	ErrIntegrity = errors.New("integrity violation")

	ErrAlreadyAttached = errors.New("sync database already attached")
	ErrNotAttached     = errors.New("sync database not attached")
	ErrInvalidAlias    = errors.New("invalid attach alias")
)

// IntegrityError reports notes referencing note types the deck lacks.
// The whole batch is rejected.
type IntegrityError struct {
	DeckID         uuid.UUID
	MissingTypeIDs []int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("deck %s has no note types %v", e.DeckID, e.MissingTypeIDs)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
