package usecase

import (
	"context"

	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/domain/autherr"
	"github.com/gatekey/gatekey/domain/valueobject"
)

// CarrierResolver decides one authentication outcome per request from
// the two optional token carriers. It is carrier-agnostic: cookies,
// headers or anything else reduce to two optional strings before they
// get here, and the resolver depends on nothing but the token service.
type CarrierResolver struct {
	tokenService outbound.TokenService
}

func NewCarrierResolver(tokenService outbound.TokenService) *CarrierResolver {
	return &CarrierResolver{tokenService: tokenService}
}

// Resolve evaluates the carriers in a fixed order; the order is a
// correctness requirement, not style:
//
//  1. access carrier present and valid        -> AccessValid
//  2. access carrier expired                  -> fall through to 3
//  3. access carrier fails any other way      -> InvalidToken (a
//     tampered access token is a stronger signal than an absent one;
//     the refresh carrier is not consulted)
//  4. refresh carrier present and valid       -> rotate + mint a new
//     access token -> RefreshValid with both fresh carriers
//  5. neither carrier present                 -> Guest
//
// Token-class failures collapse into the outcome and never surface as
// the error return. The error return is reserved for revocation-store
// failures, which are fatal for the request: an unreachable store must
// not be mistaken for "revoked" or "not revoked".
func (r *CarrierResolver) Resolve(ctx context.Context, access, refresh *string) (valueobject.AuthState, error) {
	if access != nil {
		claims, err := r.tokenService.VerifyAccessToken(*access)
		if err == nil {
			return valueobject.AccessValid(claims.Email), nil
		}
		if autherr.KindOf(err) != autherr.KindExpiredToken {
			return valueobject.InvalidToken(), nil
		}
	}

	if refresh != nil {
		claims, err := r.tokenService.VerifyRefreshToken(ctx, *refresh)
		if err != nil {
			if autherr.IsStoreError(err) {
				return valueobject.AuthState{}, err
			}
			return valueobject.InvalidToken(), nil
		}

		newRefresh, err := r.tokenService.RotateRefreshToken(ctx, *refresh)
		if err != nil {
			if autherr.IsStoreError(err) {
				return valueobject.AuthState{}, err
			}
			// A concurrent rotation may have won between verify and
			// delete; the loser is treated like any revoked token.
			return valueobject.InvalidToken(), nil
		}

		newAccess, err := r.tokenService.IssueAccessToken(claims.Email, nil)
		if err != nil {
			return valueobject.AuthState{}, err
		}

		return valueobject.RefreshValid(claims.Email, valueobject.NewTokenPair(newAccess, newRefresh)), nil
	}

	return valueobject.Guest(), nil
}
