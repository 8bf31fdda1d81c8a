package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsledger/partsledger/internal/shared"
)

func TestRespondErrorMapsClasses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("line 1: %w", shared.Classify(shared.ErrValidation, "bad qty")), http.StatusBadRequest},
		{shared.Classify(shared.ErrBusinessRule, "insufficient"), http.StatusUnprocessableEntity},
		{shared.Classify(shared.ErrNotFound, "missing"), http.StatusNotFound},
		{shared.Classify(shared.ErrIntegrity, "mismatch"), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dsn=secret"))
	assert.NotContains(t, rec.Body.String(), "secret")
}

type payload struct {
	Name string `json:"name" validate:"required"`
	Qty  int64  `json:"qty" validate:"gt=0"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","qty":0}`))
	var p payload
	err := DecodeAndValidate(req, &p)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "payload.qty")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","qty":1,"extra":true}`))
	err = DecodeAndValidate(req, &p)
	require.ErrorIs(t, err, ErrMalformedBody)
}

func TestIdempotencyKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	key, err := IdempotencyKey(req)
	require.NoError(t, err)
	assert.Empty(t, key)

	req.Header.Set(IdempotencyHeader, "not-a-uuid")
	_, err = IdempotencyKey(req)
	require.ErrorIs(t, err, shared.ErrValidation)

	req.Header.Set(IdempotencyHeader, "6F9619FF-8B86-D011-B42D-00C04FC964FF")
	key, err = IdempotencyKey(req)
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", key)
}
