package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrJobRunning, "already running for 2025-09")
	assert.True(t, errors.Is(cloned, ErrJobRunning))
	assert.False(t, errors.Is(cloned, ErrConflict))
	assert.Equal(t, "already running for 2025-09", cloned.Message)
	assert.Equal(t, "Job already running for this month", ErrJobRunning.Message)
}

func TestWrapUnwraps(t *testing.T) {
	root := errors.New("disk full")
	wrapped := Wrap(root, ErrInternal.Code, ErrInternal.Status, "insert session")
	assert.ErrorIs(t, wrapped, root)
	assert.Equal(t, "insert session: disk full", wrapped.Error())
}
