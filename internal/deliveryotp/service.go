package deliveryotp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/email"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/security"
)

const sendScopePrefix = "otp_send:"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service issues and checks the one-time codes that gate proof of delivery.
type Service interface {
	Send(ctx context.Context, shipmentID, agentID uuid.UUID) error
	Verify(ctx context.Context, shipmentID, agentID uuid.UUID, code string) error
	RequireVerified(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// ServiceParams groups the OTP service collaborators.
type ServiceParams struct {
	Repo      Repository
	Shipments shipments.Repository
	Orders    orders.Repository
	Tx        txRunner
	Limiter   rateLimiter
	Sender    email.Sender
	Config    config.DeliveryConfig
	Metrics   *metrics.DeliveryMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	shipments shipments.Repository
	orders    orders.Repository
	tx        txRunner
	limiter   rateLimiter
	sender    email.Sender
	cfg       config.DeliveryConfig
	params    security.ArgonParams
	metrics   *metrics.DeliveryMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the delivery OTP service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("otp repository required")
	case p.Shipments == nil:
		return nil, fmt.Errorf("shipment repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Limiter == nil:
		return nil, fmt.Errorf("rate limiter required")
	case p.Sender == nil:
		return nil, fmt.Errorf("otp sender required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      p.Repo,
		shipments: p.Shipments,
		orders:    p.Orders,
		tx:        p.Tx,
		limiter:   p.Limiter,
		sender:    p.Sender,
		cfg:       p.Config,
		params:    security.OTPParams(p.Config),
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) Send(ctx context.Context, shipmentID, agentID uuid.UUID) error {
	shipment, err := s.loadForAgent(ctx, shipmentID, agentID)
	if err != nil {
		return err
	}
	if shipment.HasBarcode() && !shipment.BarcodeVerified {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "barcode must be verified before sending a code")
	}
	order, err := s.orders.FindByID(ctx, shipment.OrderID)
	if err != nil {
		return notFoundOr(err, "order not found", "load order")
	}
	recipient := strings.TrimSpace(order.BuyerEmail)
	if recipient == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no contact for delivery codes")
	}

	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())
	allowed, count, err := s.limiter.FixedWindowAllow(ctx, sendScopePrefix+shipment.ID.String(), int64(s.cfg.OTPSendLimit), s.cfg.OTPSendWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check otp send window")
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many codes requested").
			WithDetails(map[string]any{"sent": count, "window_seconds": int(s.cfg.OTPSendWindow.Seconds())})
	}

	code, err := security.GenerateNumericCode(s.cfg.OTPLength)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp")
	}
	hash, err := security.HashSecret(code, s.params)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash otp")
	}

	now := s.now().UTC()
	otp := &models.DeliveryOtp{
		OrderID:    shipment.OrderID,
		ShipmentID: shipment.ID,
		Recipient:  recipient,
		CodeHash:   hash,
		ExpiresAt:  now.Add(s.cfg.OTPTTL),
		CreatedAt:  now,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// serializes with proof upload, which holds the same row lock
		locked, err := s.shipments.WithTx(tx).FindByIDForUpdate(ctx, shipment.ID)
		if err != nil {
			return err
		}
		if err := shipments.RequireAssignedAgent(locked, agentID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, otp); err != nil {
			return err
		}
		return repo.SupersedeOthers(ctx, otp.OrderID, otp.ID, now)
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store otp")
	}

	msg, err := email.DeliveryOTPMessage(recipient, email.OTPData{
		OrderID:   shipment.OrderID.String(),
		Code:      code,
		ExpiresIn: s.cfg.OTPTTL,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render otp message")
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "otp_id", otp.ID.String()), "otp dispatch failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send otp")
	}
	s.metrics.OTPSent()
	s.logg.Info(s.logg.WithField(ctx, "otp_id", otp.ID.String()), "delivery otp sent")
	return nil
}

func (s *service) Verify(ctx context.Context, shipmentID, agentID uuid.UUID, code string) error {
	code = strings.TrimSpace(code)
	if !validCode(code, s.cfg.OTPLength) {
		return pkgerrors.New(pkgerrors.CodeValidation, "otp must be numeric").
			WithDetails(map[string]any{"length": s.cfg.OTPLength})
	}
	shipment, err := s.loadForAgent(ctx, shipmentID, agentID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())

	var result string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		otp, err := repo.LatestForUpdate(ctx, shipment.OrderID)
		if err != nil {
			return notFoundOr(err, "no code has been sent for this order", "load otp")
		}
		switch {
		case otp.Verified:
			return pkgerrors.New(pkgerrors.CodeAlreadyVerified, "code already verified")
		case otp.Expired(s.now()):
			result = "expired"
			return pkgerrors.New(pkgerrors.CodeExpired, "code expired")
		case otp.Attempts >= s.cfg.OTPMaxAttempts:
			result = "locked"
			return pkgerrors.New(pkgerrors.CodeOTPInvalid, "too many attempts, request a new code")
		}
		ok, err := security.VerifySecret(code, otp.CodeHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check otp")
		}
		if !ok {
			result = "invalid"
			return repo.IncrementAttempts(ctx, otp.ID)
		}
		result = "ok"
		return repo.MarkVerified(ctx, otp.ID, s.now().UTC())
	})
	if result != "" {
		s.metrics.OTPVerify(result)
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify otp")
	}
	if result == "invalid" {
		return pkgerrors.New(pkgerrors.CodeOTPInvalid, "invalid code")
	}
	s.logg.Info(ctx, "delivery otp verified")
	return nil
}

// RequireVerified fails unless the newest code for the order is verified.
// Inside a transaction the row stays locked until commit.
func (s *service) RequireVerified(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	latest := repo.Latest
	if tx != nil {
		latest = repo.LatestForUpdate
	}
	otp, err := latest(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery code not verified")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load otp")
	}
	if !otp.Verified {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery code not verified")
	}
	return nil
}

func (s *service) loadForAgent(ctx context.Context, shipmentID, agentID uuid.UUID) (*models.Shipment, error) {
	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, notFoundOr(err, "shipment not found", "load shipment")
	}
	if err := shipments.RequireAssignedAgent(shipment, agentID); err != nil {
		return nil, err
	}
	return shipment, nil
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, internalMsg)
}
