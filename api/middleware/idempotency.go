package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lastmile-backend/api/responses"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/lastmile-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// pendingIdempotencyTTL bounds how long a crashed request blocks its key.
	pendingIdempotencyTTL = 2 * time.Minute
)

type idempotencyRule struct {
	method   string
	pattern  string
	ttl      time.Duration
	optional bool
}

// Patterns use path.Match syntax; * matches a single segment.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, pattern: "/api/v1/admin/settlement/payouts/*/pay", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/admin/settlement/earnings/*/pay", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/admin/wallet/adjustments", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/shipments", ttl: defaultIdempotencyTTL, optional: true},
	{method: http.MethodPost, pattern: "/api/v1/seller/proof-requests", ttl: defaultIdempotencyTTL, optional: true},
}

func matchRule(method, urlPath string) (idempotencyRule, bool) {
	urlPath = strings.TrimSuffix(urlPath, "/")
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if ok, _ := path.Match(rule.pattern, urlPath); ok {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

// storedResponse is the redis value for a key. A record without Status is a
// reservation held by a request still in flight.
type storedResponse struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s storedResponse) pending() bool { return s.Status == 0 }

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency reserves the Idempotency-Key before running the handler, then
// stores the response so a retry with the same key and body replays it.
// Server errors release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if rule.optional {
					next.ServeHTTP(w, r)
					return
				}
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			reserved, err := reserve(r, store, key, hash)
			if err != nil {
				fail(err)
				return
			}
			if !reserved {
				existing, err := load(r, store, key)
				if err != nil {
					fail(err)
					return
				}
				switch {
				case existing.RequestHash != hash:
					fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.pending():
					fail(pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is in progress"))
				default:
					existing.replay(w)
				}
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			payload, err := json.Marshal(storedResponse{
				RequestHash: hash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err == nil {
				err = store.Set(ctx, key, string(payload), rule.ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func reserve(r *http.Request, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	marker, err := json.Marshal(storedResponse{RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	ok, err := store.SetNX(r.Context(), key, string(marker), pendingIdempotencyTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func load(r *http.Request, store pkgredis.IdempotencyStore, key string) (storedResponse, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) {
		// Released between SetNX and Get; the client may simply retry.
		return storedResponse{}, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key released, retry the request")
	}
	if err != nil {
		return storedResponse{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return storedResponse{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return stored, nil
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
