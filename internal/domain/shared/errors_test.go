package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Kinds(t *testing.T) {
	assert.True(t, IsNotFound(ErrApplicationNotFound))
	assert.True(t, IsValidation(ErrInvalidStatus), "sub-kinds match ErrValidation")
	assert.True(t, IsValidation(ErrEmptyMessage))
	assert.True(t, IsValidation(fmt.Errorf("%w: student id", ErrInvalidID)))
	assert.False(t, IsValidation(ErrApplicationLocked))
	assert.True(t, IsLocked(fmt.Errorf("update: %w", ErrApplicationLocked)))
	assert.True(t, IsConflict(ErrVersionConflict))
	assert.True(t, IsForbidden(ErrActorNotPermitted))
	assert.True(t, IsAlreadyExists(ErrDuplicateApplication))
	assert.True(t, IsInvalidTransition(ErrInvalidTransition))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := WrapError("application", "Save", ErrConcurrentModification, "transaction aborted", cause)

	assert.Equal(t, "application.Save: transaction aborted: deadlock detected", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))

	var de *DomainError
	assert.ErrorAs(t, fmt.Errorf("lifecycle: %w", err), &de)
	assert.Equal(t, "Save", de.Op)
}
