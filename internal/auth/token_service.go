package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/metrics"
)

// Default token lifetimes. Access tokens are minutes-scale, refresh tokens
// days-scale; both are tunable through TokenConfig.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultLeeway          = 30 * time.Second
)

// TokenKind discriminates access tokens from refresh tokens. The kind is
// embedded in the signed claims, so a token of one kind can never pass
// verification where the other is expected.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Valid reports whether the kind is one of the two known discriminators.
func (k TokenKind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh:
		return true
	}
	return false
}

func (k TokenKind) String() string { return string(k) }

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong issuer or
	// audience, and tokens missing a kind discriminator.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired marks a token whose signed expiry has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenKindMismatch marks a well-signed token presented where the other
	// kind is expected.
	ErrTokenKindMismatch = errors.New("token: kind mismatch")
)

// Claims represents the custom claims embedded in issued tokens.
type Claims struct {
	UserID string      `json:"uid"`
	Role   models.Role `json:"role,omitempty"`
	Email  string      `json:"email,omitempty"`
	Kind   TokenKind   `json:"kind"`
	jwt.RegisteredClaims
}

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	// PrivateKeyPEM holds the PKCS#8 PEM encoding of the Ed25519 signing key.
	PrivateKeyPEM string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	Clock         func() time.Time
}

// TokenService issues and verifies signed tokens with one Ed25519 keypair
// held for the process lifetime. The public half may be exported so other
// processes can verify tokens independently.
type TokenService struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService from the supplied configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.PrivateKeyPEM == "" {
		return nil, errors.New("token: private key must be provided")
	}

	key, err := jwt.ParseEdPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	privateKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: private key is not Ed25519")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		leeway:     leeway,
		now:        now,
	}, nil
}

// AccessTTL exposes the configured access-token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token of the requested kind for the user and returns the
// token string together with its expiry.
func (s *TokenService) Issue(user *models.User, kind TokenKind) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errors.New("token: user is required")
	}

	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = s.accessTTL
	case KindRefresh:
		ttl = s.refreshTTL
	default:
		return "", time.Time{}, fmt.Errorf("token: unknown kind %q", kind)
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique per token so two logins in the same second never produce
			// identical refresh tokens.
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(kind.String()).Inc()

	return signed, expiresAt, nil
}

// Verify parses and validates a signed token, then checks that its embedded
// kind matches the expected one. Signature, expiry (with leeway), issuer and
// audience are all enforced; only EdDSA tokens are accepted.
func (s *TokenService) Verify(tokenString string, expected TokenKind) (*Claims, error) {
	if !expected.Valid() {
		return nil, fmt.Errorf("token: unknown expected kind %q", expected)
	}
	if tokenString == "" {
		metrics.TokenVerifications.WithLabelValues(expected.String(), "invalid").Inc()
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	parser := jwt.NewParser(opts...)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			metrics.TokenVerifications.WithLabelValues(expected.String(), "invalid").Inc()
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		metrics.TokenVerifications.WithLabelValues(expected.String(), "invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.UserID == "" {
		metrics.TokenVerifications.WithLabelValues(expected.String(), "invalid").Inc()
		return nil, fmt.Errorf("%w: missing user id claim", ErrTokenInvalid)
	}
	if !claims.Kind.Valid() {
		metrics.TokenVerifications.WithLabelValues(expected.String(), "invalid").Inc()
		return nil, fmt.Errorf("%w: missing kind claim", ErrTokenInvalid)
	}
	if claims.Kind != expected {
		metrics.TokenVerifications.WithLabelValues(expected.String(), "kind_mismatch").Inc()
		return nil, fmt.Errorf("%w: got %s, expected %s", ErrTokenKindMismatch, claims.Kind, expected)
	}

	metrics.TokenVerifications.WithLabelValues(expected.String(), "ok").Inc()
	return &claims, nil
}

// PublicKey returns the verification half of the signing keypair.
func (s *TokenService) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// PublicKeyPEM exports the verification key as PKIX PEM for other processes.
func (s *TokenService) PublicKeyPEM() (string, error) {
	return EncodePublicKeyPEM(s.publicKey)
}
