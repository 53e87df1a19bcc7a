package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func testClient(rt roundTripFunc) *Client {
	return &Client{
		http:    &http.Client{Transport: rt},
		bucket:  "proofs",
		apiBase: "https://gcs.test",
	}
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignedReadURLVerifies(t *testing.T) {
	key := testKey(t)
	now := time.Unix(1_800_000_000, 0)
	c := &Client{bucket: "proofs", signer: &urlSigner{accessID: "signer@proj.iam", key: key, now: func() time.Time { return now }}}

	object := "delivery-proofs/ship 1/proof.jpg"
	raw, err := c.SignedReadURL("", object, 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "storage.googleapis.com", u.Host)
	require.Equal(t, "/proofs/delivery-proofs/ship 1/proof.jpg", u.Path)

	q := u.Query()
	require.Equal(t, "signer@proj.iam", q.Get("GoogleAccessId"))
	require.Equal(t, "1800000900", q.Get("Expires"))

	sig, err := base64.StdEncoding.DecodeString(q.Get("Signature"))
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("GET\n\n\n1800000900\n/proofs/" + object))
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func TestSignedReadURLErrors(t *testing.T) {
	c := &Client{bucket: "proofs"}
	_, err := c.SignedReadURL("", "obj", time.Minute)
	require.ErrorIs(t, err, errNoSigner)

	c.signer = &urlSigner{accessID: "a", key: testKey(t)}
	_, err = c.SignedReadURL("", "obj", 0)
	require.Error(t, err)
	_, err = c.SignedReadURL("", "obj", 8*24*time.Hour)
	require.Error(t, err)
	_, err = c.SignedReadURL("", " ", time.Minute)
	require.Error(t, err)
}

func serviceAccountJSON(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	raw, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "svc@proj.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
	})
	require.NoError(t, err)
	return raw
}

func TestSignerFromJSON(t *testing.T) {
	key := testKey(t)
	signer, err := signerFromJSON(serviceAccountJSON(t, key))
	require.NoError(t, err)
	require.Equal(t, "svc@proj.iam.gserviceaccount.com", signer.accessID)
	require.True(t, key.Equal(signer.key))

	signer, err = signerFromJSON([]byte(`{"type":"authorized_user"}`))
	require.NoError(t, err)
	require.Nil(t, signer)

	_, err = signerFromJSON([]byte(`{"type":"service_account","client_email":"x"}`))
	require.Error(t, err)

	signer, err = signerFromJSON(nil)
	require.NoError(t, err)
	require.Nil(t, signer)
}

func TestCredentialsJSONPrefersInline(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"from":"file"}`), 0o600))

	raw, err := credentialsJSON(config.GCPConfig{CredentialsJSON: `{"from":"env"}`, ApplicationCredentials: file})
	require.NoError(t, err)
	require.JSONEq(t, `{"from":"env"}`, string(raw))

	raw, err = credentialsJSON(config.GCPConfig{ApplicationCredentials: file})
	require.NoError(t, err)
	require.JSONEq(t, `{"from":"file"}`, string(raw))

	raw, err = credentialsJSON(config.GCPConfig{})
	require.NoError(t, err)
	require.Nil(t, raw)

	_, err = credentialsJSON(config.GCPConfig{ApplicationCredentials: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}

func TestUploadSendsMediaRequest(t *testing.T) {
	var got *http.Request
	var body string
	c := testClient(func(req *http.Request) (*http.Response, error) {
		got = req
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		return respond(http.StatusOK, `{}`), nil
	})

	require.NoError(t, c.Upload(context.Background(), "", "delivery-proofs/s1/p.jpg", "image/jpeg", strings.NewReader("jpeg-bytes")))
	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/upload/storage/v1/b/proofs/o", got.URL.Path)
	require.Equal(t, "media", got.URL.Query().Get("uploadType"))
	require.Equal(t, "delivery-proofs/s1/p.jpg", got.URL.Query().Get("name"))
	require.Equal(t, "image/jpeg", got.Header.Get("Content-Type"))
	require.Equal(t, "jpeg-bytes", body)
}

func TestUploadReportsFailureBody(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusForbidden, "denied"), nil
	})
	err := c.Upload(context.Background(), "", "obj", "image/png", strings.NewReader("x"))
	require.ErrorContains(t, err, "denied")

	require.Error(t, c.Upload(context.Background(), "", "obj", "", strings.NewReader("x")))
	require.ErrorIs(t, (*Client)(nil).Upload(context.Background(), "", "obj", "image/png", nil), errNotInitialized)
}

func TestDeleteObjectToleratesMissing(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		c := testClient(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodDelete, req.Method)
			require.Equal(t, "/storage/v1/b/proofs/o/media%2Ffile.png", req.URL.EscapedPath())
			return respond(status, ""), nil
		})
		require.NoError(t, c.DeleteObject(context.Background(), "", "media/file.png"))
	}

	c := testClient(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusInternalServerError, ""), nil
	})
	require.Error(t, c.DeleteObject(context.Background(), "", "media/file.png"))
}

func TestPingListsBucket(t *testing.T) {
	c := testClient(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/storage/v1/b/proofs/o", req.URL.Path)
		require.Equal(t, "1", req.URL.Query().Get("maxResults"))
		return respond(http.StatusOK, `{"items":[]}`), nil
	})
	require.NoError(t, c.Ping(context.Background()))
}

func TestPublicURL(t *testing.T) {
	c := &Client{bucket: "proofs", publicBase: "https://cdn.example.com"}
	require.Equal(t, "https://cdn.example.com/proofs/delivery-proofs/order%201/p.png",
		c.PublicURL("", "delivery-proofs/order 1/p.png"))

	c.publicBase = ""
	require.Equal(t, "https://storage.googleapis.com/other/p.png", c.PublicURL("other", "p.png"))
}
