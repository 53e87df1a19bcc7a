package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/angelmondragon/lastmile-backend/api/middleware"
	"github.com/angelmondragon/lastmile-backend/api/validators"
	"github.com/angelmondragon/lastmile-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

func actorFromRequest(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return outbox.NewActorRef(actor.UserID, string(actor.Role))
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// readImageUpload parses a multipart body and returns the "file" part. The
// caller closes the file and removes the temporary form.
func readImageUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (multipart.File, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof image too large").
				WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file is required").
			WithDetails(map[string]any{"field": "file"})
	}
	return file, nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
