package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"direct", NotFound("booking not found"), ReasonNotFound},
		{"wrapped", fmt.Errorf("select worker: %w", NoLongerAvailable("job taken")), ReasonNoLongerAvailable},
		{"plain", errors.New("boom"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}

func TestErrorIsMatchesByReason(t *testing.T) {
	err := fmt.Errorf("apply: %w", AlreadyApplied("worker already applied"))
	assert.True(t, errors.Is(err, AlreadyApplied("")))
	assert.False(t, errors.Is(err, NotFound("")))
}

func TestWithDoesNotMutateOriginal(t *testing.T) {
	base := InvalidState("too early")
	withHours := base.With("hoursRemaining", 4.0)

	assert.Nil(t, base.Details)
	assert.Equal(t, 4.0, withHours.Details["hoursRemaining"])
}

func TestInsufficientFundsDetails(t *testing.T) {
	err := InsufficientFunds(20000, 5000)
	assert.Equal(t, ReasonInsufficientFunds, err.Reason)
	assert.Equal(t, int64(20000), err.Details["amountNeeded"])
	assert.Equal(t, int64(5000), err.Details["available"])
}
