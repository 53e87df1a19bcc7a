package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/settlements"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type payRequest struct {
	TransactionRef string `json:"transactionRef" validate:"required,max=128"`
}

// AdminPayoutList pages seller settlements, optionally filtered by ?status=.
func AdminPayoutList(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.SettlementStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseSettlementStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			status = &parsed
		}
		page, err := svc.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminPayoutPay(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlementID, err := validators.ParseUUIDParam(r, "settlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body payRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlement, err := svc.ApprovePayout(r.Context(), settlementID, strings.TrimSpace(body.TransactionRef), actorRef(actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}

func AdminPayoutHold(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementStatusAction(svc.Hold, logg)
}

func AdminPayoutRelease(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementStatusAction(svc.Release, logg)
}

func settlementStatusAction(action func(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settlementID, err := validators.ParseUUIDParam(r, "settlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlement, err := action(r.Context(), settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}

// AdminEarningPay marks an agent earning paid and debits the wallet.
func AdminEarningPay(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		earningID, err := validators.ParseUUIDParam(r, "earningId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body payRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		earning, err := svc.PayAgent(r.Context(), earningID, strings.TrimSpace(body.TransactionRef), actorRef(actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, earning)
	}
}
