package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    meta(http.StatusBadRequest, false, "validation failed", true),
		CodeUnauthorized:  meta(http.StatusUnauthorized, false, "authentication required", false),
		CodeForbidden:     meta(http.StatusForbidden, false, "access denied", false),
		CodeNotFound:      meta(http.StatusNotFound, false, "resource not found", true),
		CodeConflict:      meta(http.StatusConflict, false, "conflict detected", true),
		CodeStateConflict: meta(http.StatusConflict, false, "state transition disallowed", true),
		CodeIdempotency:   meta(http.StatusConflict, false, "idempotency key reused", true),
		CodeRateLimit:     meta(http.StatusTooManyRequests, true, "too many requests", false),
		CodeInternal:      meta(http.StatusInternalServerError, true, "internal server error", false),
		CodeDependency:    meta(http.StatusServiceUnavailable, true, "dependency unavailable", false),
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, MetadataFor(code))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load cart")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeDependency, wrapped.Code())
	assert.Equal(t, "load cart", wrapped.Message())
	assert.Nil(t, wrapped.Details())
	assert.Equal(t, "DEPENDENCY_ERROR: load cart", wrapped.Error())

	assert.Nil(t, Wrap(CodeInternal, nil, "no cause").Unwrap())
	assert.Equal(t, "limit must be at most 100", Newf(CodeValidation, "limit must be at most %d", 100).Message())
}

func TestReasonSurvivesWrapping(t *testing.T) {
	err := NewReason(CodeConflict, ReasonInsufficientStock, "insufficient stock for Widget", map[string]any{
		"available": 2,
	})
	assert.Equal(t, ReasonInsufficientStock, err.Reason())

	details, ok := err.Details().(map[string]any)
	require.True(t, ok, "details are %T", err.Details())
	assert.Equal(t, 2, details["available"])
	assert.Equal(t, "insufficient_stock", details["reason"])

	outer := fmt.Errorf("checkout: %w", err)
	assert.True(t, HasReason(outer, ReasonInsufficientStock))
	assert.False(t, HasReason(outer, ReasonEmptyCart))
	assert.Equal(t, CodeConflict, CodeOf(outer))

	plain := New(CodeConflict, "no reason").WithDetails([]string{"a"})
	assert.Empty(t, plain.Reason())
}

func TestUntypedAndNilErrors(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.WithDetails("x"))

	typed := As(fmt.Errorf("outer: %w", New(CodeForbidden, "no entry")))
	require.NotNil(t, typed)
	assert.Equal(t, CodeForbidden, typed.Code())
}
