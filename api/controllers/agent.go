package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/deliveryotp"
	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/proofs"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

type barcodeRequest struct {
	ShipmentID string `json:"shipmentId" validate:"required,uuid"`
	Barcode    string `json:"barcode" validate:"required,max=128"`
}

// AgentVerifyBarcode matches a scanned label against the shipment.
func AgentVerifyBarcode(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body barcodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDValue("shipmentId", body.ShipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.VerifyBarcode(r.Context(), shipmentID, actor.UserID, body.Barcode); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"verified": true})
	}
}

type sendOTPRequest struct {
	ShipmentID string `json:"shipmentId" validate:"required,uuid"`
}

func AgentSendOTP(svc deliveryotp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body sendOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDValue("shipmentId", body.ShipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Send(r.Context(), shipmentID, actor.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"message": "OTP sent to customer"})
	}
}

type verifyOTPRequest struct {
	ShipmentID string `json:"shipmentId" validate:"required,uuid"`
	OTP        string `json:"otp" validate:"required,numeric,max=12"`
}

func AgentVerifyOTP(svc deliveryotp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body verifyOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDValue("shipmentId", body.ShipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Verify(r.Context(), shipmentID, actor.UserID, body.OTP); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"message": "OTP verified"})
	}
}

// AgentUploadProof takes the multipart proof image and completes the delivery.
func AgentUploadProof(svc proofs.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		file, err := readImageUpload(w, r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer cleanupForm(r)
		defer file.Close()

		shipmentID, err := validators.ParseUUIDValue("shipmentId", r.FormValue("shipmentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proof, err := svc.Upload(r.Context(), shipmentID, actor.UserID, file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, proof)
	}
}

// AgentUploadOrderProof is the order-keyed upload kept for older clients.
// It stores the proof for admin review and does not complete the delivery.
func AgentUploadOrderProof(svc proofs.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		file, err := readImageUpload(w, r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer cleanupForm(r)
		defer file.Close()

		w.Header().Set("Deprecation", "true")
		remarks := validators.CleanText(r.FormValue("remarks"), 500)
		proof, err := svc.UploadByOrder(r.Context(), orderID, actor.UserID, file, remarks)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, proof)
	}
}

type locationRequest struct {
	ShipmentID string   `json:"shipmentId" validate:"required,uuid"`
	Lat        *float64 `json:"lat" validate:"required,latitude"`
	Lng        *float64 `json:"lng" validate:"required,longitude"`
}

func AgentUpdateLocation(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body locationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDValue("shipmentId", body.ShipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		point := types.GeographyPoint{Lat: *body.Lat, Lng: *body.Lng}
		if err := svc.UpdateLocation(r.Context(), shipmentID, actor.UserID, point); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteEmpty(w)
	}
}

// AgentShipments lists the caller's shipments, newest first.
func AgentShipments(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForAgent(r.Context(), actor.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AgentEarnings(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.EarningStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseEarningStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			status = &parsed
		}
		page, err := svc.List(r.Context(), actor.UserID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AgentEarningsSummary(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
