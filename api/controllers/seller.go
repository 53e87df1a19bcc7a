package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/proofs"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type proofRequestBody struct {
	ShipmentID string `json:"shipmentId" validate:"omitempty,uuid"`
	OrderID    string `json:"orderId" validate:"omitempty,uuid"`
	Reason     string `json:"reason" validate:"required,max=1000"`
}

// SellerProofRequestCreate asks an admin for access to a delivery proof.
func SellerProofRequestCreate(svc proofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body proofRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := proofs.AccessRequestInput{Reason: validators.CleanText(body.Reason, 1000)}
		if id, ok := optionalUUID(body.ShipmentID); ok {
			input.ShipmentID = &id
		}
		if id, ok := optionalUUID(body.OrderID); ok {
			input.OrderID = &id
		}
		request, err := svc.RequestAccess(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// SellerProofURL returns a readable link once the seller's request is approved.
func SellerProofURL(svc proofs.Service, logg *logger.Logger) http.HandlerFunc {
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
		url, err := svc.ProofURL(r.Context(), actor, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

func optionalUUID(raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
