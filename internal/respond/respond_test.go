package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/apperr"
)

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason apperr.Reason
		msg    string
	}{
		{"insufficient funds", apperr.InsufficientFunds(20_000, 5_000), http.StatusPaymentRequired, apperr.ReasonInsufficientFunds, "insufficient wallet balance"},
		{"no longer available", apperr.NoLongerAvailable("taken"), http.StatusConflict, apperr.ReasonNoLongerAvailable, "taken"},
		{"not found", apperr.NotFound("booking not found"), http.StatusNotFound, apperr.ReasonNotFound, "booking not found"},
		{"plain error hides cause", errors.New("pq: connection refused"), http.StatusInternalServerError, apperr.ReasonInternal, "internal error"},
		{"wrapped", apperr.Wrap(apperr.ReasonSelectionExpired, "too late", nil), http.StatusGone, apperr.ReasonSelectionExpired, "too late"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, nil, tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.reason, env.Reason)
			assert.Equal(t, tt.msg, env.Message)
		})
	}
}

func TestErrorEnvelopeCarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, apperr.InsufficientFunds(20_000, 5_000))

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.EqualValues(t, 20_000, env.Details["amountNeeded"])
	assert.EqualValues(t, 5_000, env.Details["available"])
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"id": "abc"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"abc"}}`, rec.Body.String())
}

func TestDecode(t *testing.T) {
	var v struct{ Reason string }
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"sick"}`))
	require.NoError(t, Decode(r, &v))
	assert.Equal(t, "sick", v.Reason)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, Decode(r, &v))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(Decode(r, &v)))
}
