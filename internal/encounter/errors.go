package encounter

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is.
var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInsufficientCandidates = errors.New("insufficient candidate monsters")
	ErrNoEntries              = errors.New("table has no entries")
	ErrSelfCopy               = errors.New("cannot copy your own table")
	ErrDuplicateMonster       = errors.New("monster already on table")
	ErrInconsistentTable      = errors.New("inconsistent table")
	ErrSlugAllocationFailed   = errors.New("public slug allocation failed")
	ErrShareFailed            = errors.New("sharing failed")

	// ErrSlugTaken is returned by Repository.SetSharing when another table
	// already holds the slug.
	ErrSlugTaken = errors.New("public slug already taken")
)

// InconsistentTableError reports a roll that found no entry for its roll number.
// It matches ErrInconsistentTable.
type InconsistentTableError struct {
	TableID    string
	RollNumber int
}

func (e *InconsistentTableError) Error() string {
	return fmt.Sprintf("%s: table %s has no entry for roll %d", ErrInconsistentTable, e.TableID, e.RollNumber)
}

// Is reports whether target is ErrInconsistentTable.
func (e *InconsistentTableError) Is(target error) bool {
	return target == ErrInconsistentTable
}

// Kind classifies engine errors for transport mapping and retry decisions.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindAbsence
	KindDomain
	KindIntegrity
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindAbsence:
		return "absence"
	case KindDomain:
		return "domain"
	case KindIntegrity:
		return "integrity"
	default:
		return "infrastructure"
	}
}

// KindOf classifies err. Errors that match no engine sentinel are infrastructure.
//
// Postcondition: Returns KindNone iff err is nil.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidArgument):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindAbsence
	case errors.Is(err, ErrInsufficientCandidates),
		errors.Is(err, ErrNoEntries),
		errors.Is(err, ErrSelfCopy),
		errors.Is(err, ErrDuplicateMonster):
		return KindDomain
	case errors.Is(err, ErrInconsistentTable):
		return KindIntegrity
	default:
		return KindInfrastructure
	}
}

// Retryable reports whether the same request may succeed if simply repeated.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	k := KindOf(err)
	return k == KindIntegrity || k == KindInfrastructure
}
