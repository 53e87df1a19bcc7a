package gcs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxSignedTTL = 7 * 24 * time.Hour

var errNoSigner = errors.New("gcs: signed urls need service account credentials")

// urlSigner produces V2 signed URLs with a service account key.
type urlSigner struct {
	accessID string
	key      *rsa.PrivateKey
	now      func() time.Time
}

type signRequest struct {
	method      string
	bucket      string
	object      string
	contentType string
	ttl         time.Duration
}

func (s *urlSigner) sign(host string, req signRequest) (string, error) {
	if s == nil || s.key == nil {
		return "", errNoSigner
	}
	switch {
	case req.bucket == "":
		return "", errors.New("bucket is required")
	case strings.TrimSpace(req.object) == "":
		return "", errors.New("object name is required")
	case req.ttl <= 0 || req.ttl > maxSignedTTL:
		return "", fmt.Errorf("signed url ttl %s outside (0, %s]", req.ttl, maxSignedTTL)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	expires := strconv.FormatInt(now().Add(req.ttl).Unix(), 10)

	// method, content-md5, content-type, expiry, resource
	stringToSign := req.method + "\n\n" + req.contentType + "\n" + expires + "\n/" + req.bucket + "/" + req.object
	digest := sha256.Sum256([]byte(stringToSign))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}

	q := url.Values{
		"GoogleAccessId": {s.accessID},
		"Expires":        {expires},
		"Signature":      {base64.StdEncoding.EncodeToString(sig)},
	}
	return host + "/" + req.bucket + "/" + objectPath(req.object) + "?" + q.Encode(), nil
}

func objectPath(object string) string {
	segments := strings.Split(object, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
