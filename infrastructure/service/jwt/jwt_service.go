package jwt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/domain/autherr"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTService implements outbound.TokenService with HS256-signed JWTs
// and a TTL key-value revocation store for the refresh side. The
// signing secret and TTLs are fixed at construction; the service holds
// no other state and is safe for concurrent use.
type JWTService struct {
	secret          []byte
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	store           outbound.RevocationStore
}

type Config struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type accessTokenClaims struct {
	TokenType string  `json:"typ"`
	Role      *string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type refreshTokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg Config, store outbound.RevocationStore) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	if store == nil {
		return nil, fmt.Errorf("revocation store is required")
	}

	return &JWTService{
		secret:          []byte(cfg.Secret),
		issuer:          cfg.Issuer,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
		store:           store,
	}, nil
}

func (s *JWTService) IssueAccessToken(email string, role *string) (string, error) {
	if email == "" {
		return "", autherr.New(autherr.KindOther, "subject email is required")
	}

	now := time.Now()
	claims := accessTokenClaims{
		TokenType: tokenTypeAccess,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) IssueRefreshToken(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", autherr.New(autherr.KindOther, "subject email is required")
	}

	tokenID := uuid.NewString()
	now := time.Now()
	claims := refreshTokenClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   email,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	// Sign-then-store: a token whose record write failed is never
	// handed out, since verification would unconditionally reject it.
	if err := s.store.Put(ctx, revocationKey(email, tokenID), signed, s.refreshTokenTTL); err != nil {
		return "", autherr.StoreError("put revocation record", err)
	}

	return signed, nil
}

func (s *JWTService) VerifyAccessToken(tokenString string) (*outbound.AccessClaims, error) {
	claims := &accessTokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, autherr.New(autherr.KindInvalidToken, "not an access token")
	}
	if claims.Subject == "" {
		return nil, autherr.New(autherr.KindInvalidToken, "missing subject claim")
	}

	return &outbound.AccessClaims{
		Email:     claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *JWTService) VerifyRefreshToken(ctx context.Context, tokenString string) (*outbound.RefreshClaims, error) {
	claims, err := s.parseRefresh(tokenString)
	if err != nil {
		return nil, err
	}

	// The signature alone is not enough: the record must still be
	// alive. Absence after a valid signature means revoked or already
	// rotated, a hard failure.
	alive, err := s.store.Exists(ctx, revocationKey(claims.Subject, claims.ID))
	if err != nil {
		return nil, autherr.StoreError("check revocation record", err)
	}
	if !alive {
		return nil, autherr.Wrap(autherr.KindTokenRevoked, "revocation record absent", nil)
	}

	return &outbound.RefreshClaims{
		Email:     claims.Subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *JWTService) RotateRefreshToken(ctx context.Context, oldToken string) (string, error) {
	claims, err := s.VerifyRefreshToken(ctx, oldToken)
	if err != nil {
		return "", err
	}

	// Conditional delete closes the concurrent-rotation race: of two
	// requests that both passed verification, only the one that
	// actually removed the record may mint a replacement.
	deleted, err := s.store.Delete(ctx, revocationKey(claims.Email, claims.TokenID))
	if err != nil {
		return "", autherr.StoreError("delete revocation record", err)
	}
	if !deleted {
		return "", autherr.Wrap(autherr.KindTokenRevoked, "record already rotated", nil)
	}

	return s.IssueRefreshToken(ctx, claims.Email)
}

func (s *JWTService) RefreshAccessToken(ctx context.Context, refreshToken string, role *string) (string, error) {
	claims, err := s.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(claims.Email, role)
}

func (s *JWTService) RevokeRefreshToken(ctx context.Context, tokenString string) error {
	claims, err := s.parseRefresh(tokenString)
	if err != nil {
		// An expired refresh token can still be revoked; its record may
		// outlive it by a clock skew margin. Anything else is rejected.
		if !errors.Is(err, autherr.ErrExpiredToken) {
			return err
		}
		claims, err = s.parseRefreshUnverifiedExpiry(tokenString)
		if err != nil {
			return err
		}
	}

	if _, err := s.store.Delete(ctx, revocationKey(claims.Subject, claims.ID)); err != nil {
		return autherr.StoreError("delete revocation record", err)
	}
	return nil
}

func (s *JWTService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

func (s *JWTService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return classifyParseError(err)
	}
	if !token.Valid {
		return autherr.New(autherr.KindInvalidToken, "token claims invalid")
	}
	return nil
}

func (s *JWTService) parseRefresh(tokenString string) (*refreshTokenClaims, error) {
	claims := &refreshTokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, autherr.New(autherr.KindInvalidToken, "not a refresh token")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, autherr.New(autherr.KindInvalidToken, "missing subject or jti claim")
	}
	return claims, nil
}

// parseRefreshUnverifiedExpiry re-parses with expiry validation
// disabled. Used only on the revocation path; the signature is still
// enforced.
func (s *JWTService) parseRefreshUnverifiedExpiry(tokenString string) (*refreshTokenClaims, error) {
	claims := &refreshTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, classifyParseError(err)
	}
	if claims.TokenType != tokenTypeRefresh || claims.Subject == "" || claims.ID == "" {
		return nil, autherr.New(autherr.KindInvalidToken, "not a refresh token")
	}
	return claims, nil
}

// classifyParseError maps golang-jwt sentinel errors onto the fixed
// taxonomy. Classification happens once, here; callers branch on kind
// and never re-inspect library errors.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherr.Wrap(autherr.KindExpiredToken, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return autherr.Wrap(autherr.KindInvalidSignature, "signature mismatch", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return autherr.Wrap(autherr.KindInvalidIssuer, "issuer mismatch", err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return autherr.Wrap(autherr.KindInvalidToken, "malformed token", err)
	default:
		return autherr.Wrap(autherr.KindOther, "token parse failed", err)
	}
}

// revocationKey builds the store key for a refresh token. The email is
// hashed so crafted addresses cannot smuggle separators into the key.
func revocationKey(email, tokenID string) string {
	sum := sha256.Sum256([]byte(email))
	return fmt.Sprintf("refresh:%s:%s", hex.EncodeToString(sum[:]), tokenID)
}
