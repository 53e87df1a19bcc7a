package proofs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/pkg/auth"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
)

const (
	AccessModePublic = "public"
	AccessModeSigned = "signed"

	uniqueProofConstraint   = "delivery_proofs_shipment_id_key"
	uniqueRequestConstraint = "ux_seller_proof_requests_seller_shipment"
	defaultSignedURLTTL     = 15 * time.Minute
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BlobStore is the object storage the proof images live in.
type BlobStore interface {
	Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) error
	DeleteObject(ctx context.Context, bucket, object string) error
	PublicURL(bucket, object string) string
	SignedReadURL(bucket, object string, ttl time.Duration) (string, error)
}

type otpChecker interface {
	RequireVerified(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type completer interface {
	Begin(ctx context.Context, tx *gorm.DB, shipment *models.Shipment) error
	Process(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error)
}

// Service handles proof of delivery and who may look at it.
type Service interface {
	Upload(ctx context.Context, shipmentID, agentID uuid.UUID, file io.Reader) (*models.DeliveryProof, error)
	// Deprecated: UploadByOrder stores a proof for admin review without
	// completing the delivery. Use Upload.
	UploadByOrder(ctx context.Context, orderID, agentID uuid.UUID, file io.Reader, remarks string) (*models.DeliveryProof, error)
	Verify(ctx context.Context, admin auth.Actor, shipmentID uuid.UUID) (*models.DeliveryProof, error)

	RequestAccess(ctx context.Context, seller auth.Actor, input AccessRequestInput) (*models.SellerProofRequest, error)
	ListRequests(ctx context.Context, status *enums.ProofRequestStatus, limit int) ([]models.SellerProofRequest, error)
	DecideRequest(ctx context.Context, admin auth.Actor, requestID uuid.UUID, status enums.ProofRequestStatus, comment string) (*models.SellerProofRequest, error)
	ProofURL(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) (string, error)
}

// ServiceParams groups the proofs collaborators.
type ServiceParams struct {
	Repo         Repository
	Shipments    shipments.Repository
	Orders       orders.Repository
	OTP          otpChecker
	Completion   completer
	Transitioner *shipments.Transitioner
	Outbox       outbox.Emitter
	Store        BlobStore
	Tx           txRunner
	Bucket       string
	Prefix       string
	AccessMode   string
	MaxBytes     int64
	SignedURLTTL time.Duration
	Logger       *logger.Logger
}

type service struct {
	repo       Repository
	shipments  shipments.Repository
	orders     orders.Repository
	otp        otpChecker
	completion completer
	transition *shipments.Transitioner
	outbox     outbox.Emitter
	store      BlobStore
	tx         txRunner
	bucket     string
	prefix     string
	accessMode string
	maxBytes   int64
	signedTTL  time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

type storedBlob struct {
	key         string
	url         string
	contentType string
}

// NewService wires the proofs service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("proofs repository required")
	case p.Shipments == nil:
		return nil, fmt.Errorf("shipment repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.OTP == nil:
		return nil, fmt.Errorf("otp checker required")
	case p.Completion == nil:
		return nil, fmt.Errorf("completion service required")
	case p.Transitioner == nil:
		return nil, fmt.Errorf("transitioner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Store == nil:
		return nil, fmt.Errorf("blob store required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	mode := strings.ToLower(strings.TrimSpace(p.AccessMode))
	if mode != AccessModeSigned {
		mode = AccessModePublic
	}
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	ttl := p.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	return &service{
		repo:       p.Repo,
		shipments:  p.Shipments,
		orders:     p.Orders,
		otp:        p.OTP,
		completion: p.Completion,
		transition: p.Transitioner,
		outbox:     p.Outbox,
		store:      p.Store,
		tx:         p.Tx,
		bucket:     p.Bucket,
		prefix:     strings.Trim(p.Prefix, "/"),
		accessMode: mode,
		maxBytes:   maxBytes,
		signedTTL:  ttl,
		logg:       p.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Upload(ctx context.Context, shipmentID, agentID uuid.UUID, file io.Reader) (*models.DeliveryProof, error) {
	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, notFoundOr(err, "shipment not found", "load shipment")
	}
	if err := s.checkUploadAllowed(ctx, shipment, agentID); err != nil {
		return nil, err
	}
	if shipment.Status != enums.ShipmentStatusDelivered {
		if err := shipments.CheckAllowed(shipment, enums.ShipmentStatusDelivered); err != nil {
			return nil, err
		}
	}
	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())

	blob, err := s.storeImage(ctx, shipment.ID, file)
	if err != nil {
		return nil, err
	}

	var (
		proof     *models.DeliveryProof
		replaced  string
		delivered bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.shipments.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, shipment.ID)
		if err != nil {
			return notFoundOr(err, "shipment not found", "lock shipment")
		}
		if err := checkHolder(locked, agentID); err != nil {
			return err
		}
		// a code re-sent since the first check supersedes the verified one
		if err := s.otp.RequireVerified(ctx, tx, locked.OrderID); err != nil {
			return err
		}
		proof, replaced, err = s.upsertProof(ctx, tx, locked, agentID, blob, nil)
		if err != nil {
			return err
		}
		if locked.Status == enums.ShipmentStatusDelivered {
			return nil
		}
		if err := s.transition.Apply(ctx, tx, repo, locked, shipments.Change{
			To:    enums.ShipmentStatusDelivered,
			Actor: outbox.NewActorRef(agentID, string(enums.UserRoleAgent)),
			Note:  "proof of delivery uploaded",
		}); err != nil {
			return err
		}
		delivered = true
		return s.completion.Begin(ctx, tx, locked)
	})
	if err != nil {
		s.discard(ctx, blob.key)
		return nil, wrapInternal(err, "store proof")
	}
	if replaced != "" && replaced != blob.key {
		s.discard(ctx, replaced)
	}

	s.logg.Info(s.logg.WithField(ctx, "object_key", blob.key), "delivery proof uploaded")
	if delivered {
		s.complete(ctx, shipment.ID)
	}
	return proof, nil
}

func (s *service) UploadByOrder(ctx context.Context, orderID, agentID uuid.UUID, file io.Reader, remarks string) (*models.DeliveryProof, error) {
	shipment, err := s.shipments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "shipment not found for order", "load shipment")
	}
	if err := s.checkUploadAllowed(ctx, shipment, agentID); err != nil {
		return nil, err
	}
	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())

	blob, err := s.storeImage(ctx, shipment.ID, file)
	if err != nil {
		return nil, err
	}
	var note *string
	if trimmed := strings.TrimSpace(remarks); trimmed != "" {
		note = &trimmed
	}

	var (
		proof    *models.DeliveryProof
		replaced string
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.shipments.WithTx(tx).FindByIDForUpdate(ctx, shipment.ID)
		if err != nil {
			return notFoundOr(err, "shipment not found", "lock shipment")
		}
		if err := checkHolder(locked, agentID); err != nil {
			return err
		}
		if err := s.otp.RequireVerified(ctx, tx, locked.OrderID); err != nil {
			return err
		}
		proof, replaced, err = s.upsertProof(ctx, tx, locked, agentID, blob, note)
		return err
	})
	if err != nil {
		s.discard(ctx, blob.key)
		return nil, wrapInternal(err, "store proof")
	}
	if replaced != "" && replaced != blob.key {
		s.discard(ctx, replaced)
	}
	s.logg.Warn(s.logg.WithField(ctx, "object_key", blob.key), "proof stored through order upload, awaiting review")
	return proof, nil
}

func (s *service) Verify(ctx context.Context, admin auth.Actor, shipmentID uuid.UUID) (*models.DeliveryProof, error) {
	if !admin.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var (
		proof     *models.DeliveryProof
		delivered bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.shipments.WithTx(tx)
		shipment, err := repo.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return notFoundOr(err, "shipment not found", "lock shipment")
		}
		proofs := s.repo.WithTx(tx)
		proof, err = proofs.FindProofForUpdate(ctx, shipmentID)
		if err != nil {
			return notFoundOr(err, "no proof uploaded for shipment", "load proof")
		}
		if proof.AdminVerified {
			return pkgerrors.New(pkgerrors.CodeAlreadyVerified, "proof already verified")
		}
		at := s.now().UTC()
		ok, err := proofs.MarkProofVerified(ctx, proof.ID, admin.UserID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify proof")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAlreadyVerified, "proof already verified")
		}
		adminID := admin.UserID
		proof.AdminVerified = true
		proof.VerifiedBy = &adminID
		proof.VerifiedAt = &at

		if shipment.Status == enums.ShipmentStatusDelivered {
			return nil
		}
		if err := s.transition.Apply(ctx, tx, repo, shipment, shipments.Change{
			To:    enums.ShipmentStatusDelivered,
			Actor: outbox.NewActorRef(admin.UserID, string(admin.Role)),
			Note:  "proof verified by admin",
			At:    at,
		}); err != nil {
			return err
		}
		delivered = true
		return s.completion.Begin(ctx, tx, shipment)
	})
	if err != nil {
		return nil, wrapInternal(err, "verify proof")
	}
	ctx = s.logg.WithShipment(ctx, proof.ShipmentID.String(), proof.OrderID.String())
	s.logg.Info(s.logg.WithField(ctx, "admin_id", admin.UserID.String()), "delivery proof verified")
	if delivered {
		s.complete(ctx, shipmentID)
	}
	return proof, nil
}

func (s *service) checkUploadAllowed(ctx context.Context, shipment *models.Shipment, agentID uuid.UUID) error {
	if err := checkHolder(shipment, agentID); err != nil {
		return err
	}
	if shipment.HasBarcode() && !shipment.BarcodeVerified {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "barcode must be verified before proof upload")
	}
	return s.otp.RequireVerified(ctx, nil, shipment.OrderID)
}

// checkHolder allows the assigned agent on an open or delivered shipment.
func checkHolder(shipment *models.Shipment, agentID uuid.UUID) error {
	if !shipment.IsAssignedTo(agentID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "shipment is not assigned to agent")
	}
	if shipment.Status == enums.ShipmentStatusDelivered || shipment.Status.IsAgentHeld() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment does not accept proof").
		WithDetails(map[string]any{"status": shipment.Status})
}

func (s *service) storeImage(ctx context.Context, shipmentID uuid.UUID, file io.Reader) (storedBlob, error) {
	if file == nil {
		return storedBlob{}, pkgerrors.New(pkgerrors.CodeValidation, "image is required")
	}
	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return storedBlob{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image")
	}
	if len(data) == 0 {
		return storedBlob{}, pkgerrors.New(pkgerrors.CodeValidation, "image is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return storedBlob{}, pkgerrors.New(pkgerrors.CodeValidation, "image too large").
			WithDetails(map[string]any{"max_bytes": s.maxBytes})
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return storedBlob{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported image type").
			WithDetails(map[string]any{"content_type": mtype.String(), "allowed": allowedImageTypes})
	}

	key := path.Join(s.prefix, shipmentID.String(), uuid.NewString()+mtype.Extension())
	if err := s.store.Upload(ctx, s.bucket, key, mtype.String(), bytes.NewReader(data)); err != nil {
		return storedBlob{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload proof image")
	}
	return storedBlob{key: key, url: s.store.PublicURL(s.bucket, key), contentType: mtype.String()}, nil
}

// upsertProof writes the proof row and returns the object key it replaced.
func (s *service) upsertProof(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, agentID uuid.UUID, blob storedBlob, remarks *string) (*models.DeliveryProof, string, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	existing, err := repo.FindProofForUpdate(ctx, shipment.ID)
	switch {
	case err == nil:
		if existing.AdminVerified {
			return nil, "", pkgerrors.New(pkgerrors.CodeStateConflict, "proof already verified and cannot be replaced")
		}
		previous := existing.ObjectKey
		existing.AgentID = agentID
		existing.ImageURL = blob.url
		existing.ObjectKey = blob.key
		existing.ContentType = blob.contentType
		existing.Remarks = remarks
		existing.UploadedAt = now
		if err := repo.SaveProof(ctx, existing); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", pkgerrors.New(pkgerrors.CodeStateConflict, "proof already verified and cannot be replaced")
			}
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update proof")
		}
		return existing, previous, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load proof")
	}

	proof := &models.DeliveryProof{
		ShipmentID:  shipment.ID,
		OrderID:     shipment.OrderID,
		AgentID:     agentID,
		ImageURL:    blob.url,
		ObjectKey:   blob.key,
		ContentType: blob.contentType,
		Remarks:     remarks,
		UploadedAt:  now,
	}
	if err := repo.CreateProof(ctx, proof); err != nil {
		if db.IsUniqueViolation(err, uniqueProofConstraint) {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "proof upload already in progress")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create proof")
	}
	return proof, "", nil
}

func (s *service) complete(ctx context.Context, shipmentID uuid.UUID) {
	row, err := s.completion.Process(ctx, shipmentID)
	if err != nil {
		s.logg.Error(ctx, "delivery completion deferred to reconcile", err)
		return
	}
	if row != nil && row.Done() {
		s.logg.Info(ctx, "delivery postings recorded")
	}
}

func (s *service) discard(ctx context.Context, key string) {
	if err := s.store.DeleteObject(ctx, s.bucket, key); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"object_key": key, "error": err.Error()}), "failed to delete proof object")
	}
}

func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return wrapInternal(err, internalMsg)
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
