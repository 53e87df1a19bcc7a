package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	WriteEmpty(w)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{}}`, w.Body.String())
}

func TestWriteErrorMapsDomainCodes(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is DELIVERED"), http.StatusConflict, "shipment is DELIVERED"},
		{pkgerrors.New(pkgerrors.CodeExpired, "otp expired"), http.StatusGone, "otp expired"},
		{pkgerrors.New(pkgerrors.CodeOTPInvalid, "otp mismatch"), http.StatusBadRequest, "otp mismatch"},
		{pkgerrors.New(pkgerrors.CodeRoleMismatch, "user is not an agent"), http.StatusUnprocessableEntity, "user is not an agent"},
		{pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet too low"), http.StatusUnprocessableEntity, "wallet too low"},
		{pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis down"), "rate limiter"), http.StatusServiceUnavailable, "dependency unavailable"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logg, w, tc.err)
		require.Equal(t, tc.status, w.Code)

		var body ErrorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Equal(t, tc.message, body.Error.Message)
	}
}

func TestWriteErrorKeepsValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "otp"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	require.NotNil(t, body.Error.Details)
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	require.Equal(t, "internal server error", body.Error.Message)
	require.Nil(t, body.Error.Details)
}

func TestWriteSuccessUnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"ch": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, encodeFailure, w.Body.String())
}
