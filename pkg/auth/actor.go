package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// Actor is the authenticated caller a service acts on behalf of.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// ActorFromClaims lifts verified token claims into an Actor.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

func (a Actor) IsAdmin() bool  { return a.Role == enums.UserRoleAdmin }
func (a Actor) IsSeller() bool { return a.Role == enums.UserRoleSeller }
func (a Actor) IsAgent() bool  { return a.Role == enums.UserRoleAgent }

// Valid reports whether the actor carries an id and a known role.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}
