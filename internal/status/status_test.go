package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NotFound(SubjectListing, "Listing not found")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "Listing: Listing not found", err.Error())
}

func TestError_WrappedKeepsKind(t *testing.T) {
	err := fmt.Errorf("buy listing: %w", Conflict(SubjectListing, "Listing is already closed"))

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("price must be positive")
	err := InvalidInput(SubjectListing, "invalid price", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "price must be positive")
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindInternal, KindOf(nil))
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "not_found", KindNotFound.String())
}
