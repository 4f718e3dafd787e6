package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := NotFound("card")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNotLinked))

	wrapped := fmt.Errorf("withdraw: %w", LimitExceeded("EXCEEDS_DAILY_WITHDRAWAL_LIMIT"))
	assert.True(t, errors.Is(wrapped, ErrLimitExceeded))
	assert.Equal(t, KindLimitExceeded, KindOf(wrapped))
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New(`pq: relation "cards" does not exist`)
	err := Internal("load card", cause)

	assert.Equal(t, KindInternal, KindOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "pq")
}

func TestInternal_KeepsClassifiedErrors(t *testing.T) {
	err := Internal("load card", NotFound("card"))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInternal_DeadlineIsRetryable(t *testing.T) {
	err := Internal("withdraw", context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindOf(err)))
}

func TestPublicMessage_LimitReason(t *testing.T) {
	err := LimitExceeded("EXCEEDS_PER_TRANSACTION_LIMIT")
	assert.Equal(t, "LIMIT_EXCEEDED: EXCEEDS_PER_TRANSACTION_LIMIT", PublicMessage(err))
}

func TestHTTPStatus_DistinctForTransactionErrors(t *testing.T) {
	statuses := map[int]Kind{}
	for _, k := range []Kind{KindNotFound, KindInsufficientFunds, KindLimitExceeded, KindNotLinked} {
		s := HTTPStatus(k)
		_, dup := statuses[s]
		assert.False(t, dup, "status %d reused by %s", s, k)
		statuses[s] = k
	}
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindNotLinked))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindOf(errors.New("boom"))))
}

func TestPublicMessage_ValidationReasonWithoutCause(t *testing.T) {
	err := Wrap(KindValidation, "malformed request body", errors.New("invalid character 'x'"))
	assert.Equal(t, "Invalid request: malformed request body", PublicMessage(err))
}
