package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

// RequireRole admits actors holding one of roles. Auth must run first.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	roles = slices.Clone(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checkRole(r, roles); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkRole(r *http.Request, roles []enums.UserRole) error {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	if !slices.Contains(roles, actor.Role) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
			WithDetails(map[string]any{"role": actor.Role, "allowed": roles})
	}
	return nil
}
