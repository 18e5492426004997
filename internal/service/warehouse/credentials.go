package warehouse

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// ServiceAccount is the subset of a Google service account key file used for the JWT-bearer grant.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`

	key *rsa.PrivateKey
}

// ParseServiceAccount decodes a service account JSON document and its PEM key.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("decode service account: %w", err)
	}
	if sa.ClientEmail == "" {
		return nil, errors.New("service account: client_email is required")
	}
	if sa.PrivateKey == "" {
		return nil, errors.New("service account: private_key is required")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}

	// Keys pasted into env vars often carry escaped newlines.
	pem := strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("service account: parse private key: %w", err)
	}
	sa.key = key
	return &sa, nil
}

// LoadServiceAccount reads credentials from inline JSON, falling back to a file path.
func LoadServiceAccount(inline, file string) (*ServiceAccount, error) {
	if strings.TrimSpace(inline) != "" {
		return ParseServiceAccount([]byte(inline))
	}
	if file == "" {
		return nil, errors.New("no warehouse credentials configured")
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return ParseServiceAccount(raw)
}
