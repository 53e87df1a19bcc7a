package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
)

const readWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"

// credentials resolves, in order, inline JSON, a key file, then Application
// Default Credentials (the metadata server on GCP).
func credentials(ctx context.Context, gcp config.GCPConfig) (*google.Credentials, error) {
	raw, err := credentialsJSON(gcp)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		creds, err := google.FindDefaultCredentials(ctx, readWriteScope)
		if err != nil {
			return nil, fmt.Errorf("default gcp credentials: %w", err)
		}
		return creds, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, readWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parse gcp credentials: %w", err)
	}
	return creds, nil
}

func credentialsJSON(gcp config.GCPConfig) ([]byte, error) {
	switch {
	case gcp.CredentialsJSON != "":
		return []byte(gcp.CredentialsJSON), nil
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return raw, nil
	}
	return nil, nil
}

// signerFromJSON extracts the service account key used for signed URLs.
// Metadata-server credentials carry no key, so nil is returned for them.
func signerFromJSON(raw []byte) (*urlSigner, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var sa struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("decode service account: %w", err)
	}
	if sa.Type != "service_account" {
		return nil, nil
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("service account is missing client_email or private_key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &urlSigner{accessID: sa.ClientEmail, key: key}, nil
}
