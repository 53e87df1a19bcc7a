package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
)

type otpBody struct {
	ShipmentID string `json:"shipmentId" validate:"required,uuid"`
	OTP        string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

func TestDecodeJSONBody(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"shipmentId":"`+id+`","otp":"123456"}`))
	var body otpBody
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, id, body.ShipmentID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"shipmentId":"nope","otp":"12a"}`))
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]string)
	require.Equal(t, "must be a valid uuid", details["shipmentId"])
	require.Equal(t, "must be numeric", details["otp"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"shipmentId":"`+id+`","otp":"123456","extra":1}`))
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":      ``,
		"trailing":   `{"shipmentId":"` + uuid.NewString() + `","otp":"1234"} {}`,
		"syntax":     `{"shipmentId":`,
		"wrong type": `{"shipmentId":42,"otp":"1234"}`,
		"too large":  `{"shipmentId":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var body otpBody
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
			require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
		})
	}
}

type amountBody struct {
	Amount *decimal.Decimal `json:"amount" validate:"required,positive_amount"`
}

func TestPositiveAmount(t *testing.T) {
	for raw, ok := range map[string]bool{
		`{"amount":"10"}`:     true,
		`{"amount":"10.50"}`:  true,
		`{"amount":"10.500"}`: true,
		`{"amount":"10.505"}`: false,
		`{"amount":"0"}`:      false,
		`{"amount":"-3"}`:     false,
		`{}`:                  false,
	} {
		var body amountBody
		err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw)), &body)
		if ok {
			require.NoError(t, err, raw)
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=30", nil)
	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 30, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 10, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 10, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	rctx.URLParams.Add("bad", "42")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "id")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(req, "missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDValue("shipmentId", uuid.Nil.String())
	require.Error(t, err)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "left at door", CleanText("  left at door \t", 0))
	require.Equal(t, "line1\nline2", CleanText("line1\x00\nline2", 0))
	require.Equal(t, "abc", CleanText("abcdef", 3))
	// "é" is two bytes; a cap landing inside it backs off to the rune start
	require.Equal(t, "ab", CleanText("abé", 3))
}
