package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
)

// Repository reads identity rows. Users are written by the identity service.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// RequireRole loads id and checks it is an active holder of role. Failures
// come back as coded errors ready for the API.
func (r *Repository) RequireRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.User, error) {
	user, err := r.FindByID(ctx, id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, string(role)+" not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	case user.Role != role:
		return nil, pkgerrors.New(pkgerrors.CodeRoleMismatch, "user does not hold role "+string(role)).
			WithDetails(map[string]any{"user_id": id, "role": user.Role})
	case !user.IsActive:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, string(role)+" is inactive")
	}
	return user, nil
}
