package proofs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// Repository persists delivery proofs and seller requests to view them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProof(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryProof, error)
	FindProofForUpdate(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryProof, error)
	CreateProof(ctx context.Context, proof *models.DeliveryProof) error
	SaveProof(ctx context.Context, proof *models.DeliveryProof) error
	MarkProofVerified(ctx context.Context, proofID, adminID uuid.UUID, at time.Time) (bool, error)

	CreateRequest(ctx context.Context, req *models.SellerProofRequest) error
	FindRequest(ctx context.Context, id uuid.UUID) (*models.SellerProofRequest, error)
	FindRequestForSeller(ctx context.Context, sellerID, shipmentID uuid.UUID) (*models.SellerProofRequest, error)
	ListRequests(ctx context.Context, status *enums.ProofRequestStatus, limit int) ([]models.SellerProofRequest, error)
	DecideRequest(ctx context.Context, id uuid.UUID, status enums.ProofRequestStatus, comment *string, adminID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a proofs repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProof(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryProof, error) {
	return r.findProof(r.db.WithContext(ctx), shipmentID)
}

func (r *repository) FindProofForUpdate(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryProof, error) {
	return r.findProof(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), shipmentID)
}

func (r *repository) findProof(query *gorm.DB, shipmentID uuid.UUID) (*models.DeliveryProof, error) {
	var proof models.DeliveryProof
	if err := query.Where("shipment_id = ?", shipmentID).First(&proof).Error; err != nil {
		return nil, err
	}
	return &proof, nil
}

func (r *repository) CreateProof(ctx context.Context, proof *models.DeliveryProof) error {
	return r.db.WithContext(ctx).Create(proof).Error
}

// SaveProof overwrites an unverified proof. Verified proofs are left alone.
func (r *repository) SaveProof(ctx context.Context, proof *models.DeliveryProof) error {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryProof{}).
		Where("id = ? AND admin_verified = ?", proof.ID, false).
		Updates(map[string]any{
			"agent_id":     proof.AgentID,
			"image_url":    proof.ImageURL,
			"object_key":   proof.ObjectKey,
			"content_type": proof.ContentType,
			"remarks":      proof.Remarks,
			"uploaded_at":  proof.UploadedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) MarkProofVerified(ctx context.Context, proofID, adminID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryProof{}).
		Where("id = ? AND admin_verified = ?", proofID, false).
		Updates(map[string]any{
			"admin_verified": true,
			"verified_by":    adminID,
			"verified_at":    at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CreateRequest(ctx context.Context, req *models.SellerProofRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.SellerProofRequest, error) {
	var req models.SellerProofRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindRequestForSeller(ctx context.Context, sellerID, shipmentID uuid.UUID) (*models.SellerProofRequest, error) {
	var req models.SellerProofRequest
	if err := r.db.WithContext(ctx).
		Where("seller_id = ? AND shipment_id = ?", sellerID, shipmentID).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListRequests(ctx context.Context, status *enums.ProofRequestStatus, limit int) ([]models.SellerProofRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.SellerProofRequest{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.SellerProofRequest
	if err := query.Order("requested_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DecideRequest moves a PENDING request to status. It reports false when
// the request was already processed.
func (r *repository) DecideRequest(ctx context.Context, id uuid.UUID, status enums.ProofRequestStatus, comment *string, adminID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SellerProofRequest{}).
		Where("id = ? AND status = ?", id, enums.ProofRequestStatusPending).
		Updates(map[string]any{
			"status":        status,
			"admin_comment": comment,
			"processed_by":  adminID,
			"processed_at":  at,
		})
	return res.RowsAffected > 0, res.Error
}
