package progression

import (
	"errors"

	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

const domain = "progression"

// Progression errors. Callers branch on them with errors.Is.
var (
	// ErrInsufficientFunds - a spend exceeds the balance. No state changed.
	ErrInsufficientFunds = shared.NewDomainError(domain, "Spend", shared.ErrPreconditionFailed, "insufficient funds")

	// ErrLevelTooLow - the item is gated above the student's level. No state changed.
	ErrLevelTooLow = shared.NewDomainError(domain, "Purchase", shared.ErrForbidden, "level too low")

	// ErrNoMoreHints - all hint tiers of the lesson are unlocked.
	ErrNoMoreHints = shared.NewDomainError(domain, "UnlockHint", shared.ErrInvalidState, "no more hints")

	// ErrHintOutOfOrder - a tier was requested before its predecessor.
	ErrHintOutOfOrder = shared.NewDomainError(domain, "UnlockHint", shared.ErrStateTransition, "hint tiers must unlock in order")

	// ErrInvalidActivity - unknown activity, lesson or cosmetic id.
	ErrInvalidActivity = shared.NewDomainError(domain, "Find", shared.ErrNotFound, "activity not found")

	// ErrStudentNotFound - unknown student id.
	ErrStudentNotFound = shared.NewDomainError(domain, "FindStudent", shared.ErrNotFound, "student not found")

	// ErrStudentExists - signup for an id that is already registered.
	ErrStudentExists = shared.NewDomainError(domain, "CreateStudent", shared.ErrAlreadyExists, "student already exists")

	// ErrInvalidStudentID - empty student id.
	ErrInvalidStudentID = shared.NewDomainError(domain, "Validate", shared.ErrInvalidID, "invalid student id")

	// ErrNegativeDelta - an earning path was given a negative amount.
	ErrNegativeDelta = shared.NewDomainError(domain, "ApplyReward", shared.ErrNegativeValue, "reward deltas must be non-negative")

	// ErrRewardOverflow - the reward would overflow the XP or coin totals.
	ErrRewardOverflow = shared.NewDomainError(domain, "ApplyReward", shared.ErrInvalidInput, "reward exceeds representable totals")

	// ErrCorruptState - a loaded student violates the stored invariants.
	ErrCorruptState = shared.NewDomainError(domain, "Load", shared.ErrInvalidState, "student state violates invariants")

	// ErrPersistence - the transaction aborted, conflicted or storage is unavailable.
	// Nothing was applied; the same request may be retried.
	ErrPersistence = shared.NewDomainError(domain, "Commit", shared.ErrServiceUnavailable, "persistence failure")
)

var rejections = []error{
	ErrInsufficientFunds,
	ErrLevelTooLow,
	ErrNoMoreHints,
	ErrHintOutOfOrder,
	ErrInvalidActivity,
	ErrStudentNotFound,
	ErrStudentExists,
	ErrInvalidStudentID,
	ErrNegativeDelta,
	ErrRewardOverflow,
	ErrCorruptState,
}

// IsRejection reports whether err is a business outcome rather than a storage
// failure. Rejections are returned as is; they are never retried.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
