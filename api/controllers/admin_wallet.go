package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

// AdminWalletGet reports the cached balance next to the ledger sum.
func AdminWalletGet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Reconcile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// AdminWalletLedger pages wallet transactions, newest first.
func AdminWalletLedger(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListLedger(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type adjustmentRequest struct {
	Type        string           `json:"type" validate:"required,oneof=CREDIT DEBIT"`
	Amount      *decimal.Decimal `json:"amount" validate:"required,positive_amount"`
	Source      string           `json:"source" validate:"required"`
	ReferenceID string           `json:"referenceId" validate:"max=128"`
	Description string           `json:"description" validate:"required,max=500"`
}

func AdminWalletAdjust(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body adjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Adjust(r.Context(), wallet.AdjustInput{
			Type:        enums.WalletTransactionType(body.Type),
			Amount:      *body.Amount,
			Source:      enums.WalletTransactionSource(strings.ToUpper(strings.TrimSpace(body.Source))),
			ReferenceID: strings.TrimSpace(body.ReferenceID),
			Description: validators.CleanText(body.Description, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// AdminWalletRebuild recomputes the cached balance from the ledger.
func AdminWalletRebuild(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Rebuild(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}
