package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_ErrorFormat(t *testing.T) {
	err := WrapError("achievement", "ValidateOne", ErrStorage, "upsert failed", errors.New("conn reset"))
	assert.Equal(t, "achievement.ValidateOne: upsert failed: conn reset", err.Error())

	plain := NewDomainError("streak", "Check", ErrInvalidState, "bad state")
	assert.Equal(t, "streak.Check: bad state", plain.Error())
}

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	cause := errors.New("timeout dialing")
	err := WrapError("achievement", "GetProgress", ErrStorage, "read failed", cause)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrComputation))
}

func TestNewStorageError(t *testing.T) {
	assert.Nil(t, NewStorageError("x", "y", nil))

	wrapped := NewStorageError("progress", "Upsert", errors.New("boom"))
	assert.True(t, IsStorage(wrapped))
	assert.True(t, IsRetryable(wrapped))

	// Already a storage error: kept as-is instead of double wrapping.
	again := NewStorageError("validator", "ValidateOne", fmt.Errorf("ctx: %w", wrapped))
	assert.True(t, IsStorage(again))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsValidationInput(ErrDailyGoalTooLow))
	assert.True(t, IsValidationInput(ErrEmptyUserID))
	assert.True(t, IsComputation(ErrNilSnapshot))
	assert.True(t, IsNotFound(ErrUnknownAchievement))
	assert.False(t, IsRetryable(ErrNegativeSubtasks))
}
