package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

type pointRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

func (p *pointRequest) toPoint() *types.GeographyPoint {
	if p == nil {
		return nil
	}
	return &types.GeographyPoint{Lat: *p.Lat, Lng: *p.Lng}
}

type shipmentCreateRequest struct {
	OrderID             string           `json:"orderId" validate:"required,uuid"`
	Barcode             *string          `json:"barcode" validate:"omitempty,max=128"`
	SellerLocation      *pointRequest    `json:"sellerLocation"`
	ShippingLocation    *pointRequest    `json:"shippingLocation"`
	DistanceKM          *decimal.Decimal `json:"distanceKm"`
	EstimatedDeliveryAt *time.Time       `json:"estimatedDeliveryAt"`
}

// ShipmentCreate opens a shipment for an order.
func ShipmentCreate(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body shipmentCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDValue("orderId", body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.Create(r.Context(), actor, shipments.CreateInput{
			OrderID:          orderID,
			Barcode:          body.Barcode,
			SellerLocation:   body.SellerLocation.toPoint(),
			ShippingLocation: body.ShippingLocation.toPoint(),
			DistanceKM:       body.DistanceKM,
			EstimatedAt:      body.EstimatedDeliveryAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shipment)
	}
}

func ShipmentGet(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
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
		shipment, err := svc.Get(r.Context(), actor, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// ShipmentAssign hands the shipment to the agent named by ?agentId=.
func ShipmentAssign(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
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
		agentID, err := validators.ParseUUIDQuery(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Assign(r.Context(), actor, shipmentID, agentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteEmpty(w)
	}
}

func ShipmentDispatch(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
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
		if err := svc.Dispatch(r.Context(), actor, shipmentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteEmpty(w)
	}
}

type shipmentFailRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ShipmentFail records a failed delivery attempt by the assigned agent.
func ShipmentFail(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body shipmentFailRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkFailed(r.Context(), shipmentID, actor.UserID, validators.CleanText(body.Reason, 500)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteEmpty(w)
	}
}

type earningRequest struct {
	DistanceKM *decimal.Decimal `json:"distanceKm" validate:"required"`
}

// ShipmentRecordEarning lets the agent record the earning for a delivered
// shipment with an explicit distance.
func ShipmentRecordEarning(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body earningRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.DistanceKM.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "distanceKm must be positive").
				WithDetails(map[string]any{"field": "distanceKm"}))
			return
		}
		earning, err := svc.RecordForShipment(r.Context(), shipmentID, actor.UserID, *body.DistanceKM)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, earning)
	}
}
