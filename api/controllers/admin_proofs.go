package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/completion"
	"github.com/angelmondragon/lastmile-backend/internal/proofs"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

func AdminProofRequests(svc proofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := proofStatusQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requests, err := svc.ListRequests(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests)
	}
}

// AdminProofRequestDecide approves or rejects a seller request via
// ?status=APPROVED|REJECTED&comment=.
func AdminProofRequestDecide(svc proofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := proofStatusQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if status == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status is required").
				WithDetails(map[string]any{"field": "status"}))
			return
		}
		comment := validators.CleanText(r.URL.Query().Get("comment"), 1000)
		request, err := svc.DecideRequest(r.Context(), actor, requestID, *status, comment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func AdminProofVerify(svc proofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(r, "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proof, err := svc.Verify(r.Context(), actor, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proof)
	}
}

// AdminCompletionRetry reruns the earning and settlement steps for a
// delivered shipment regardless of the attempt cap.
func AdminCompletionRetry(svc completion.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := validators.ParseUUIDParam(r, "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Retry(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func proofStatusQuery(r *http.Request) (*enums.ProofRequestStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	status, err := enums.ParseProofRequestStatus(strings.ToUpper(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]any{"field": "status"})
	}
	return &status, nil
}
