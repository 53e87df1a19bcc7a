package proofs

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/auth"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// AccessRequestInput identifies the shipment by id or by order.
type AccessRequestInput struct {
	ShipmentID *uuid.UUID
	OrderID    *uuid.UUID
	Reason     string
}

func (s *service) RequestAccess(ctx context.Context, seller auth.Actor, input AccessRequestInput) (*models.SellerProofRequest, error) {
	if !seller.IsSeller() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller role required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if (input.ShipmentID == nil) == (input.OrderID == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of shipmentId or orderId is required")
	}

	var (
		shipment *models.Shipment
		err      error
	)
	if input.ShipmentID != nil {
		shipment, err = s.shipments.FindByID(ctx, *input.ShipmentID)
	} else {
		shipment, err = s.shipments.FindByOrderID(ctx, *input.OrderID)
	}
	if err != nil {
		return nil, notFoundOr(err, "shipment not found", "load shipment")
	}
	order, err := s.orders.FindByID(ctx, shipment.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	if order.SellerID == nil || *order.SellerID != seller.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another seller")
	}

	existing, err := s.repo.FindRequestForSeller(ctx, seller.UserID, shipment.ID)
	if err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "proof already requested for shipment").
			WithDetails(map[string]any{"request_id": existing.ID, "status": existing.Status})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load proof request")
	}

	req := &models.SellerProofRequest{
		SellerID:    seller.UserID,
		ShipmentID:  shipment.ID,
		OrderID:     shipment.OrderID,
		Status:      enums.ProofRequestStatusPending,
		Reason:      reason,
		RequestedAt: s.now().UTC(),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		if db.IsUniqueViolation(err, uniqueRequestConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "proof already requested for shipment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create proof request")
	}
	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())
	s.logg.Info(s.logg.WithField(ctx, "request_id", req.ID.String()), "proof access requested")
	return req, nil
}

func (s *service) ListRequests(ctx context.Context, status *enums.ProofRequestStatus, limit int) ([]models.SellerProofRequest, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid proof request status")
	}
	rows, err := s.repo.ListRequests(ctx, status, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list proof requests")
	}
	return rows, nil
}

func (s *service) DecideRequest(ctx context.Context, admin auth.Actor, requestID uuid.UUID, status enums.ProofRequestStatus, comment string) (*models.SellerProofRequest, error) {
	if !admin.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !status.IsDecision() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be APPROVED or REJECTED")
	}
	var note *string
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		note = &trimmed
	}

	var req *models.SellerProofRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindRequest(ctx, requestID)
		if err != nil {
			return notFoundOr(err, "proof request not found", "load proof request")
		}
		at := s.now().UTC()
		ok, err := repo.DecideRequest(ctx, requestID, status, note, admin.UserID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decide proof request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proof request already processed").
				WithDetails(map[string]any{"status": current.Status})
		}
		adminID := admin.UserID
		current.Status = status
		current.AdminComment = note
		current.ProcessedAt = &at
		current.ProcessedBy = &adminID
		req = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProofRequestDecided,
			AggregateType: enums.AggregateProofRequest,
			AggregateID:   current.ID,
			Actor:         outbox.NewActorRef(admin.UserID, string(admin.Role)),
			OccurredAt:    at,
			Data: payloads.ProofRequestDecidedEvent{
				RequestID:  current.ID,
				SellerID:   current.SellerID,
				ShipmentID: current.ShipmentID,
				Status:     status,
				Comment:    strings.TrimSpace(comment),
			},
		})
	})
	if err != nil {
		return nil, wrapInternal(err, "decide proof request")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"request_id": req.ID.String(),
		"status":     string(status),
	}), "proof request decided")
	return req, nil
}

// ProofURL returns a link to the proof image. Sellers need an approved
// request for the shipment.
func (s *service) ProofURL(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) (string, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsSeller():
		req, err := s.repo.FindRequestForSeller(ctx, actor.UserID, shipmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "no approved proof request for shipment")
		}
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load proof request")
		}
		if req.Status != enums.ProofRequestStatusApproved {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "proof request is not approved").
				WithDetails(map[string]any{"status": req.Status})
		}
	default:
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}

	proof, err := s.repo.FindProof(ctx, shipmentID)
	if err != nil {
		return "", notFoundOr(err, "no proof uploaded for shipment", "load proof")
	}
	if s.accessMode == AccessModePublic {
		return proof.ImageURL, nil
	}
	url, err := s.store.SignedReadURL(s.bucket, proof.ObjectKey, s.signedTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign proof url")
	}
	return url, nil
}
