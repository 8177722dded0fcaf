package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatekey/gatekey/application/port/inbound"
	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/domain/autherr"
	"github.com/gatekey/gatekey/domain/entity"
	"github.com/gatekey/gatekey/infrastructure/service/logger"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type MockPasswordService struct {
	mock.Mock
}

func (m *MockPasswordService) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordService) VerifyPassword(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

type MockRateLimitService struct {
	mock.Mock
}

func (m *MockRateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	args := m.Called(ctx, key, window)
	return args.Error(0)
}

func (m *MockRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	args := m.Called(ctx, key, duration, reason)
	return args.Error(0)
}

func (m *MockRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, message string, fields map[string]interface{})             {}
func (noopLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {}
func (noopLogger) Warn(ctx context.Context, message string, fields map[string]interface{})             {}
func (noopLogger) Debug(ctx context.Context, message string, fields map[string]interface{})            {}
func (l noopLogger) WithFields(fields map[string]interface{}) logger.Logger                            { return l }

func newAuthFixture() (*MockUserRepository, *MockTokenService, *MockPasswordService, *MockRateLimitService, inbound.AuthUseCase) {
	mockUsers := new(MockUserRepository)
	mockTokens := new(MockTokenService)
	mockPasswords := new(MockPasswordService)
	mockRateLimit := new(MockRateLimitService)

	uc := NewAuthUseCase(mockUsers, mockTokens, mockPasswords, mockRateLimit, noopLogger{})
	return mockUsers, mockTokens, mockPasswords, mockRateLimit, uc
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	mockUsers, mockTokens, mockPasswords, mockRateLimit, uc := newAuthFixture()

	role := "admin"
	user := &entity.User{
		ID:       "user-123",
		Email:    "alice@example.com",
		Password: "hashed-password",
		Role:     &role,
	}

	mockRateLimit.On("IsBlocked", mock.Anything, mock.Anything).Return(false, nil)
	mockRateLimit.On("CheckLimit", mock.Anything, mock.Anything, 5, 15*time.Minute).Return(true, nil)
	mockUsers.On("FindByEmail", mock.Anything, "alice@example.com").Return(user, nil)
	mockPasswords.On("VerifyPassword", "password123", "hashed-password").Return(true, nil)
	mockTokens.On("IssueAccessToken", "alice@example.com", &role).Return("access-token", nil)
	mockTokens.On("IssueRefreshToken", mock.Anything, "alice@example.com").Return("refresh-token", nil)
	mockTokens.On("AccessTokenTTL").Return(15 * time.Minute)
	mockTokens.On("RefreshTokenTTL").Return(7 * 24 * time.Hour)

	resp, err := uc.Login(ctx, inbound.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "access-token", resp.AccessToken)
	assert.Equal(t, "refresh-token", resp.RefreshToken)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, 604800, resp.RefreshExpiresIn)
	assert.Equal(t, "user-123", resp.User.ID)

	mockUsers.AssertExpectations(t)
	mockTokens.AssertExpectations(t)
	mockPasswords.AssertExpectations(t)
}

func TestLogin_UserNotFound(t *testing.T) {
	ctx := context.Background()
	mockUsers, _, _, mockRateLimit, uc := newAuthFixture()

	mockRateLimit.On("IsBlocked", mock.Anything, mock.Anything).Return(false, nil)
	mockRateLimit.On("CheckLimit", mock.Anything, mock.Anything, 5, 15*time.Minute).Return(true, nil)
	mockRateLimit.On("Increment", mock.Anything, mock.Anything, 15*time.Minute).Return(nil)
	mockUsers.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, outbound.ErrUserNotFound)

	resp, err := uc.Login(ctx, inbound.LoginRequest{
		Email:    "ghost@example.com",
		Password: "password123",
	})

	// Same error as a wrong password; the response must not reveal
	// whether the account exists.
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, resp)
	mockRateLimit.AssertCalled(t, "Increment", mock.Anything, mock.Anything, 15*time.Minute)
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	mockUsers, _, mockPasswords, mockRateLimit, uc := newAuthFixture()

	user := &entity.User{
		ID:       "user-123",
		Email:    "alice@example.com",
		Password: "hashed-password",
	}

	mockRateLimit.On("IsBlocked", mock.Anything, mock.Anything).Return(false, nil)
	mockRateLimit.On("CheckLimit", mock.Anything, mock.Anything, 5, 15*time.Minute).Return(true, nil)
	mockRateLimit.On("Increment", mock.Anything, mock.Anything, 15*time.Minute).Return(nil)
	mockUsers.On("FindByEmail", mock.Anything, "alice@example.com").Return(user, nil)
	mockPasswords.On("VerifyPassword", "wrong", "hashed-password").Return(false, nil)

	resp, err := uc.Login(ctx, inbound.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, resp)
}

func TestLogin_BlockedIP(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClientIPKey, "203.0.113.9")
	mockUsers, _, _, mockRateLimit, uc := newAuthFixture()

	mockRateLimit.On("IsBlocked", mock.Anything, "ip:203.0.113.9").Return(true, nil)

	resp, err := uc.Login(ctx, inbound.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})

	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Nil(t, resp)
	mockUsers.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestLogin_RateLimitExceededBlocksIP(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClientIPKey, "203.0.113.9")
	_, _, _, mockRateLimit, uc := newAuthFixture()

	mockRateLimit.On("IsBlocked", mock.Anything, "ip:203.0.113.9").Return(false, nil)
	mockRateLimit.On("CheckLimit", mock.Anything, "ip:203.0.113.9", 5, 15*time.Minute).Return(false, nil)
	mockRateLimit.On("Block", mock.Anything, "ip:203.0.113.9", 30*time.Minute, mock.Anything).Return(nil)

	_, err := uc.Login(ctx, inbound.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})

	assert.ErrorIs(t, err, ErrTooManyAttempts)
	mockRateLimit.AssertCalled(t, "Block", mock.Anything, "ip:203.0.113.9", 30*time.Minute, mock.Anything)
}

func TestRegister_Success(t *testing.T) {
	ctx := context.Background()
	mockUsers, _, mockPasswords, _, uc := newAuthFixture()

	mockUsers.On("ExistsByEmail", mock.Anything, "bob@example.com").Return(false, nil)
	mockPasswords.On("HashPassword", "Str0ng!pass").Return("hashed", nil)
	mockUsers.On("Create", mock.Anything, mock.AnythingOfType("*entity.User")).Return(nil)

	resp, err := uc.Register(ctx, inbound.RegisterRequest{
		Email:    "bob@example.com",
		Password: "Str0ng!pass",
	})

	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", resp.Email)
	assert.NotEmpty(t, resp.ID)
	assert.Nil(t, resp.Role)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	mockUsers, _, _, _, uc := newAuthFixture()

	mockUsers.On("ExistsByEmail", mock.Anything, "bob@example.com").Return(true, nil)

	resp, err := uc.Register(ctx, inbound.RegisterRequest{
		Email:    "bob@example.com",
		Password: "Str0ng!pass",
	})

	assert.ErrorIs(t, err, outbound.ErrUserAlreadyExists)
	assert.Nil(t, resp)
	mockUsers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRefresh_MissingToken(t *testing.T) {
	_, _, _, _, uc := newAuthFixture()

	resp, err := uc.Refresh(context.Background(), inbound.RefreshRequest{})

	assert.Equal(t, autherr.KindMissingCarrier, autherr.KindOf(err))
	assert.Nil(t, resp)
}

func TestRefresh_Success_ReattachesRole(t *testing.T) {
	ctx := context.Background()
	mockUsers, mockTokens, _, _, uc := newAuthFixture()

	role := "agent"
	mockTokens.On("VerifyRefreshToken", mock.Anything, "good-refresh").Return(&outbound.RefreshClaims{
		Email:   "alice@example.com",
		TokenID: "token-1",
	}, nil)
	mockTokens.On("RotateRefreshToken", mock.Anything, "good-refresh").Return("new-refresh", nil)
	mockUsers.On("FindByEmail", mock.Anything, "alice@example.com").Return(&entity.User{
		ID:    "user-123",
		Email: "alice@example.com",
		Role:  &role,
	}, nil)
	mockTokens.On("IssueAccessToken", "alice@example.com", &role).Return("new-access", nil)
	mockTokens.On("AccessTokenTTL").Return(15 * time.Minute)
	mockTokens.On("RefreshTokenTTL").Return(7 * 24 * time.Hour)

	resp, err := uc.Refresh(ctx, inbound.RefreshRequest{RefreshToken: "good-refresh"})

	require.NoError(t, err)
	assert.Equal(t, "new-access", resp.AccessToken)
	assert.Equal(t, "new-refresh", resp.RefreshToken)
	mockTokens.AssertExpectations(t)
}

func TestRefresh_RevokedToken(t *testing.T) {
	_, mockTokens, _, _, uc := newAuthFixture()

	mockTokens.On("VerifyRefreshToken", mock.Anything, "revoked").
		Return(nil, autherr.Wrap(autherr.KindTokenRevoked, "revocation record absent", nil))

	resp, err := uc.Refresh(context.Background(), inbound.RefreshRequest{RefreshToken: "revoked"})

	assert.Equal(t, autherr.KindTokenRevoked, autherr.KindOf(err))
	assert.Nil(t, resp)
}

func TestLogout_InvalidTokenStillSucceeds(t *testing.T) {
	_, mockTokens, _, _, uc := newAuthFixture()

	mockTokens.On("RevokeRefreshToken", mock.Anything, "garbage").
		Return(autherr.New(autherr.KindInvalidToken, "malformed token"))

	err := uc.Logout(context.Background(), inbound.LogoutRequest{RefreshToken: "garbage"})

	assert.NoError(t, err)
}

func TestLogout_StoreErrorPropagates(t *testing.T) {
	_, mockTokens, _, _, uc := newAuthFixture()

	mockTokens.On("RevokeRefreshToken", mock.Anything, "good-refresh").
		Return(autherr.StoreError("delete revocation record", assert.AnError))

	err := uc.Logout(context.Background(), inbound.LogoutRequest{RefreshToken: "good-refresh"})

	assert.True(t, autherr.IsStoreError(err))
}

func TestMe_Success(t *testing.T) {
	mockUsers, _, _, _, uc := newAuthFixture()

	mockUsers.On("FindByEmail", mock.Anything, "alice@example.com").Return(&entity.User{
		ID:    "user-123",
		Email: "alice@example.com",
	}, nil)

	resp, err := uc.Me(context.Background(), "alice@example.com")

	require.NoError(t, err)
	assert.Equal(t, "user-123", resp.ID)
}

func TestMe_NotFound(t *testing.T) {
	mockUsers, _, _, _, uc := newAuthFixture()

	mockUsers.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, outbound.ErrUserNotFound)

	resp, err := uc.Me(context.Background(), "ghost@example.com")

	assert.ErrorIs(t, err, outbound.ErrUserNotFound)
	assert.Nil(t, resp)
}
