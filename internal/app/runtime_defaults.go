package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/database"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
)

const (
	mfaSecretBytes = 32
	mfaSaltBytes   = 16
)

// RuntimeSecrets carries the secret material resolved at boot. The signing
// key comes from configuration when set, otherwise from a generated system
// setting. The MFA encryption key is always derived from persisted material
// so enrolled secrets stay decryptable across restarts.
type RuntimeSecrets struct {
	SigningKeyPEM    string
	MFAEncryptionKey []byte
}

// EnsureRuntimeSecrets resolves all secrets the services need, generating and
// persisting any that are missing. It returns a map describing which settings
// were generated on this boot so callers can log the event without exposing
// values.
func EnsureRuntimeSecrets(ctx context.Context, db *gorm.DB, cfg *Config) (*RuntimeSecrets, map[string]bool, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("runtime secrets: config is nil")
	}
	if db == nil {
		return nil, nil, fmt.Errorf("runtime secrets: db is nil")
	}

	generated := make(map[string]bool)
	secrets := &RuntimeSecrets{}

	signingKey := strings.TrimSpace(cfg.Auth.Tokens.PrivateKey)
	if signingKey == "" {
		value, wasGenerated, err := ensureSecretSetting(ctx, db, database.SigningKeySetting, auth.GenerateSigningKeyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("runtime secrets: signing key: %w", err)
		}
		signingKey = value
		if wasGenerated {
			generated[database.SigningKeySetting] = true
		}
	}
	secrets.SigningKeyPEM = signingKey
	cfg.Auth.Tokens.PrivateKey = signingKey

	mfaSecret, wasGenerated, err := ensureSecretSetting(ctx, db, database.MFASecretKeySetting, func() (string, error) {
		return generateHexKey(mfaSecretBytes)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("runtime secrets: mfa secret: %w", err)
	}
	if wasGenerated {
		generated[database.MFASecretKeySetting] = true
	}

	mfaSalt, wasGenerated, err := ensureSecretSetting(ctx, db, database.MFAKDFSaltSetting, func() (string, error) {
		return generateHexKey(mfaSaltBytes)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("runtime secrets: mfa salt: %w", err)
	}
	if wasGenerated {
		generated[database.MFAKDFSaltSetting] = true
	}

	secretBytes, err := DecodeKey(mfaSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime secrets: decode mfa secret: %w", err)
	}
	saltBytes, err := DecodeKey(mfaSalt)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime secrets: decode mfa salt: %w", err)
	}

	key, err := crypto.DeriveKeyArgon2id(secretBytes, saltBytes, crypto.DefaultArgon2Params())
	if err != nil {
		return nil, nil, fmt.Errorf("runtime secrets: derive mfa key: %w", err)
	}
	secrets.MFAEncryptionKey = key

	return secrets, generated, nil
}

// ensureSecretSetting resolves the stored value for key through
// database.EnsureGeneratedSetting. The second return reports whether this
// call generated the value.
func ensureSecretSetting(ctx context.Context, db *gorm.DB, key string, generate func() (string, error)) (string, bool, error) {
	current, err := database.GetSystemSetting(ctx, db, key)
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(current) != "" {
		return current, false, nil
	}

	value, err := database.EnsureGeneratedSetting(ctx, db, key, generate)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
