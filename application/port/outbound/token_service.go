package outbound

import (
	"context"
	"time"
)

// AccessClaims is the payload of a verified access token. Role is
// optional; an absent role is nil, never a sentinel string.
type AccessClaims struct {
	Email     string    `json:"email"`
	Role      *string   `json:"role,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshClaims is the payload of a verified refresh token. TokenID is
// the jti generated at issuance and is the join key into the
// revocation store.
type RefreshClaims struct {
	Email     string    `json:"email"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService issues, verifies, rotates and revokes the signed token
// pair. Verification failures are classified into the autherr
// taxonomy; store failures surface as autherr.KindStoreError and are
// never folded into a revocation verdict.
type TokenService interface {
	// IssueAccessToken signs a short-lived access token. Pure
	// computation, no store access.
	IssueAccessToken(email string, role *string) (string, error)

	// IssueRefreshToken signs a long-lived refresh token and registers
	// its revocation record with a matching TTL. If the record write
	// fails the token is not returned: a signed-but-unregistered token
	// could never redeem anyway.
	IssueRefreshToken(ctx context.Context, email string) (string, error)

	// VerifyAccessToken checks signature, structure and expiry. Pure
	// read, no store access.
	VerifyAccessToken(token string) (*AccessClaims, error)

	// VerifyRefreshToken checks signature, structure and expiry, then
	// requires the revocation record to still exist. A missing record
	// after a valid signature means revoked or already rotated and
	// fails with autherr.ErrTokenRevoked.
	VerifyRefreshToken(ctx context.Context, token string) (*RefreshClaims, error)

	// RotateRefreshToken verifies the old token, conditionally deletes
	// its revocation record and issues a replacement for the same
	// subject. Single-use: of two concurrent rotations of the same
	// token, exactly one succeeds; the other observes ErrTokenRevoked.
	RotateRefreshToken(ctx context.Context, oldToken string) (string, error)

	// RefreshAccessToken verifies a refresh token and mints a new
	// access token for its subject without rotating it.
	RefreshAccessToken(ctx context.Context, refreshToken string, role *string) (string, error)

	// RevokeRefreshToken deletes the token's revocation record so it
	// can never redeem again. Tokens past expiry are accepted as long
	// as the signature checks out.
	RevokeRefreshToken(ctx context.Context, token string) error

	// AccessTokenTTL reports the configured access validity window.
	AccessTokenTTL() time.Duration

	// RefreshTokenTTL reports the configured refresh validity window.
	RefreshTokenTTL() time.Duration
}
