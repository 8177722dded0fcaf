package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/domain/autherr"
	"github.com/gatekey/gatekey/domain/valueobject"
)

type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) IssueAccessToken(email string, role *string) (string, error) {
	args := m.Called(email, role)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) IssueRefreshToken(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) VerifyAccessToken(token string) (*outbound.AccessClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.AccessClaims), args.Error(1)
}

func (m *MockTokenService) VerifyRefreshToken(ctx context.Context, token string) (*outbound.RefreshClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.RefreshClaims), args.Error(1)
}

func (m *MockTokenService) RotateRefreshToken(ctx context.Context, oldToken string) (string, error) {
	args := m.Called(ctx, oldToken)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) RefreshAccessToken(ctx context.Context, refreshToken string, role *string) (string, error) {
	args := m.Called(ctx, refreshToken, role)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenService) AccessTokenTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockTokenService) RefreshTokenTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func strptr(s string) *string { return &s }

func TestCarrierResolver_NoCarriers_Guest(t *testing.T) {
	mockTokens := new(MockTokenService)
	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateGuest, state.Kind)
	assert.False(t, state.Authenticated())
	mockTokens.AssertExpectations(t)
}

func TestCarrierResolver_ValidAccess(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyAccessToken", "good-access").Return(&outbound.AccessClaims{
		Email: "alice@example.com",
	}, nil)

	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), strptr("good-access"), strptr("some-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateAccessValid, state.Kind)
	assert.Equal(t, "alice@example.com", state.Email)
	assert.True(t, state.Authenticated())

	// The refresh carrier is never touched when access verifies.
	mockTokens.AssertNotCalled(t, "VerifyRefreshToken", mock.Anything, mock.Anything)
}

func TestCarrierResolver_TamperedAccess_Terminates(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyAccessToken", "tampered").
		Return(nil, autherr.New(autherr.KindInvalidSignature, "signature mismatch"))

	resolver := NewCarrierResolver(mockTokens)

	// Even with a perfectly good refresh token alongside, a tampered
	// access carrier ends resolution immediately.
	state, err := resolver.Resolve(context.Background(), strptr("tampered"), strptr("good-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateInvalidToken, state.Kind)
	mockTokens.AssertNotCalled(t, "VerifyRefreshToken", mock.Anything, mock.Anything)
}

func TestCarrierResolver_ExpiredAccess_FallsThroughToRefresh(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyAccessToken", "expired-access").
		Return(nil, autherr.New(autherr.KindExpiredToken, "token expired"))
	mockTokens.On("VerifyRefreshToken", mock.Anything, "good-refresh").Return(&outbound.RefreshClaims{
		Email:   "alice@example.com",
		TokenID: "token-1",
	}, nil)
	mockTokens.On("RotateRefreshToken", mock.Anything, "good-refresh").Return("new-refresh", nil)
	mockTokens.On("IssueAccessToken", "alice@example.com", (*string)(nil)).Return("new-access", nil)

	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), strptr("expired-access"), strptr("good-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateRefreshValid, state.Kind)
	assert.Equal(t, "alice@example.com", state.Email)
	require.NotNil(t, state.Rotated)
	assert.Equal(t, "new-access", state.Rotated.AccessToken)
	assert.Equal(t, "new-refresh", state.Rotated.RefreshToken)
	mockTokens.AssertExpectations(t)
}

func TestCarrierResolver_RefreshOnly(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyRefreshToken", mock.Anything, "good-refresh").Return(&outbound.RefreshClaims{
		Email:   "alice@example.com",
		TokenID: "token-1",
	}, nil)
	mockTokens.On("RotateRefreshToken", mock.Anything, "good-refresh").Return("new-refresh", nil)
	mockTokens.On("IssueAccessToken", "alice@example.com", (*string)(nil)).Return("new-access", nil)

	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), nil, strptr("good-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateRefreshValid, state.Kind)
	assert.True(t, state.Authenticated())
}

func TestCarrierResolver_RevokedRefresh_InvalidToken(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyRefreshToken", mock.Anything, "revoked-refresh").
		Return(nil, autherr.Wrap(autherr.KindTokenRevoked, "revocation record absent", nil))

	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), nil, strptr("revoked-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateInvalidToken, state.Kind)
}

func TestCarrierResolver_LostRotationRace_InvalidToken(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyRefreshToken", mock.Anything, "contested-refresh").Return(&outbound.RefreshClaims{
		Email:   "alice@example.com",
		TokenID: "token-1",
	}, nil)
	mockTokens.On("RotateRefreshToken", mock.Anything, "contested-refresh").
		Return("", autherr.Wrap(autherr.KindTokenRevoked, "record already rotated", nil))

	resolver := NewCarrierResolver(mockTokens)

	state, err := resolver.Resolve(context.Background(), nil, strptr("contested-refresh"))

	require.NoError(t, err)
	assert.Equal(t, valueobject.StateInvalidToken, state.Kind)
}

func TestCarrierResolver_StoreError_PropagatesAsError(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyRefreshToken", mock.Anything, "any-refresh").
		Return(nil, autherr.StoreError("check revocation record", assert.AnError))

	resolver := NewCarrierResolver(mockTokens)

	_, err := resolver.Resolve(context.Background(), nil, strptr("any-refresh"))

	require.Error(t, err)
	assert.True(t, autherr.IsStoreError(err))
}

func TestCarrierResolver_StoreErrorDuringRotation_PropagatesAsError(t *testing.T) {
	mockTokens := new(MockTokenService)
	mockTokens.On("VerifyRefreshToken", mock.Anything, "good-refresh").Return(&outbound.RefreshClaims{
		Email:   "alice@example.com",
		TokenID: "token-1",
	}, nil)
	mockTokens.On("RotateRefreshToken", mock.Anything, "good-refresh").
		Return("", autherr.StoreError("delete revocation record", assert.AnError))

	resolver := NewCarrierResolver(mockTokens)

	_, err := resolver.Resolve(context.Background(), nil, strptr("good-refresh"))

	require.Error(t, err)
	assert.True(t, autherr.IsStoreError(err))
}
