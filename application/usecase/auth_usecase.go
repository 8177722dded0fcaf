package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatekey/gatekey/application/port/inbound"
	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/domain/autherr"
	"github.com/gatekey/gatekey/domain/entity"
	"github.com/gatekey/gatekey/infrastructure/service/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)

type AuthUseCase struct {
	userRepository   outbound.UserRepository
	tokenService     outbound.TokenService
	passwordService  outbound.PasswordService
	rateLimitService inbound.RateLimitService
	logger           logger.Logger
}

func NewAuthUseCase(
	userRepo outbound.UserRepository,
	tokenService outbound.TokenService,
	passwordService outbound.PasswordService,
	rateLimitService inbound.RateLimitService,
	log logger.Logger,
) inbound.AuthUseCase {
	return &AuthUseCase{
		userRepository:   userRepo,
		tokenService:     tokenService,
		passwordService:  passwordService,
		rateLimitService: rateLimitService,
		logger:           log,
	}
}

func (uc *AuthUseCase) Login(ctx context.Context, req inbound.LoginRequest) (*inbound.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	ip := clientIP(ctx)
	if uc.rateLimitService != nil {
		blocked, err := uc.rateLimitService.IsBlocked(ctx, fmt.Sprintf("ip:%s", ip))
		if err != nil {
			uc.logger.Error(ctx, "Failed to check IP block status", err, map[string]interface{}{
				"ip": ip,
			})
		}
		if blocked {
			logger.LogSecurityEvent(ctx, uc.logger, "blocked_ip_login_attempt", "MEDIUM", map[string]interface{}{
				"ip":    ip,
				"email": req.Email,
			})
			return nil, ErrTooManyAttempts
		}

		allowed, err := uc.rateLimitService.CheckLimit(ctx, fmt.Sprintf("ip:%s", ip), 5, 15*time.Minute)
		if err != nil {
			uc.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{
				"ip": ip,
			})
		}
		if !allowed {
			_ = uc.rateLimitService.Block(ctx, fmt.Sprintf("ip:%s", ip), 30*time.Minute, "login rate limit exceeded")
			logger.LogSecurityEvent(ctx, uc.logger, "ip_rate_limit_exceeded", "HIGH", map[string]interface{}{
				"ip":    ip,
				"email": req.Email,
			})
			return nil, ErrTooManyAttempts
		}
	}

	user, err := uc.userRepository.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			uc.countFailedAttempt(ctx, ip)
			logger.LogAuthEvent(ctx, uc.logger, "login_failed_user_not_found", "", ip, false, map[string]interface{}{
				"email": req.Email,
			})
			return nil, ErrInvalidCredentials
		}
		uc.logger.Error(ctx, "Failed to find user", err, map[string]interface{}{
			"email": req.Email,
		})
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	start := time.Now()
	valid, err := uc.passwordService.VerifyPassword(req.Password, user.Password)
	logger.LogPerformance(ctx, uc.logger, "password_verification", time.Since(start), map[string]interface{}{
		"user_id": user.ID,
	})
	if err != nil {
		uc.logger.Error(ctx, "Password verification error", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, fmt.Errorf("password verification failed: %w", err)
	}
	if !valid {
		uc.countFailedAttempt(ctx, ip)
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_invalid_password", user.ID, ip, false, map[string]interface{}{
			"email": req.Email,
		})
		return nil, ErrInvalidCredentials
	}

	accessToken, err := uc.tokenService.IssueAccessToken(user.Email, user.Role)
	if err != nil {
		uc.logger.Error(ctx, "Failed to issue access token", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := uc.tokenService.IssueRefreshToken(ctx, user.Email)
	if err != nil {
		uc.logger.Error(ctx, "Failed to issue refresh token", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "login_successful", user.ID, ip, true, map[string]interface{}{
		"email": req.Email,
	})

	return &inbound.LoginResponse{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int(uc.tokenService.AccessTokenTTL().Seconds()),
		RefreshExpiresIn: int(uc.tokenService.RefreshTokenTTL().Seconds()),
		User: inbound.MeResponse{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		},
	}, nil
}

func (uc *AuthUseCase) Register(ctx context.Context, req inbound.RegisterRequest) (*inbound.MeResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	exists, err := uc.userRepository.ExistsByEmail(ctx, req.Email)
	if err != nil {
		uc.logger.Error(ctx, "Failed to check user existence", err, map[string]interface{}{
			"email": req.Email,
		})
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, outbound.ErrUserAlreadyExists
	}

	hash, err := uc.passwordService.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := entity.NewUser(uuid.NewString(), req.Email, hash, nil)
	if err := uc.userRepository.Create(ctx, user); err != nil {
		uc.logger.Error(ctx, "Failed to create user", err, map[string]interface{}{
			"email": req.Email,
		})
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "registration_successful", user.ID, clientIP(ctx), true, map[string]interface{}{
		"email": req.Email,
	})

	return &inbound.MeResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

func (uc *AuthUseCase) Refresh(ctx context.Context, req inbound.RefreshRequest) (*inbound.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return nil, autherr.New(autherr.KindMissingCarrier, "refresh token is required")
	}

	claims, err := uc.tokenService.VerifyRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		uc.logRefreshFailure(ctx, err)
		return nil, err
	}

	newRefreshToken, err := uc.tokenService.RotateRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		uc.logRefreshFailure(ctx, err)
		return nil, err
	}

	// Re-attach the stored role so a refreshed access token carries the
	// same privileges as one minted at login.
	var role *string
	if user, err := uc.userRepository.FindByEmail(ctx, claims.Email); err == nil {
		role = user.Role
	}

	accessToken, err := uc.tokenService.IssueAccessToken(claims.Email, role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "token_refresh_successful", "", clientIP(ctx), true, map[string]interface{}{
		"email": claims.Email,
	})

	return &inbound.RefreshResponse{
		AccessToken:      accessToken,
		RefreshToken:     newRefreshToken,
		ExpiresIn:        int(uc.tokenService.AccessTokenTTL().Seconds()),
		RefreshExpiresIn: int(uc.tokenService.RefreshTokenTTL().Seconds()),
	}, nil
}

func (uc *AuthUseCase) Logout(ctx context.Context, req inbound.LogoutRequest) error {
	if req.RefreshToken == "" {
		return autherr.New(autherr.KindMissingCarrier, "refresh token is required")
	}

	if err := uc.tokenService.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		if autherr.IsStoreError(err) {
			uc.logger.Error(ctx, "Failed to revoke refresh token", err, nil)
			return err
		}
		// An unusable token has nothing left to revoke; logout still
		// succeeds from the client's point of view.
		logger.LogAuthEvent(ctx, uc.logger, "logout_with_invalid_token", "", clientIP(ctx), false, map[string]interface{}{
			"kind": string(autherr.KindOf(err)),
		})
		return nil
	}

	logger.LogAuthEvent(ctx, uc.logger, "logout_successful", "", clientIP(ctx), true, nil)
	return nil
}

func (uc *AuthUseCase) Me(ctx context.Context, email string) (*inbound.MeResponse, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	user, err := uc.userRepository.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			return nil, outbound.ErrUserNotFound
		}
		uc.logger.Error(ctx, "Failed to find user", err, map[string]interface{}{
			"email": email,
		})
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &inbound.MeResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

func (uc *AuthUseCase) countFailedAttempt(ctx context.Context, ip string) {
	if uc.rateLimitService == nil {
		return
	}
	if err := uc.rateLimitService.Increment(ctx, fmt.Sprintf("ip:%s", ip), 15*time.Minute); err != nil {
		uc.logger.Error(ctx, "Failed to increment rate limit counter", err, map[string]interface{}{
			"ip": ip,
		})
	}
}

func (uc *AuthUseCase) logRefreshFailure(ctx context.Context, err error) {
	kind := autherr.KindOf(err)
	severity := "MEDIUM"
	if kind == autherr.KindTokenRevoked {
		// A revoked-token replay is the signature of a stolen refresh
		// token being reused after rotation.
		severity = "HIGH"
	}
	logger.LogSecurityEvent(ctx, uc.logger, "token_refresh_failed", severity, map[string]interface{}{
		"kind": string(kind),
	})
}

type contextKey string

// ClientIPKey carries the caller's IP through the request context.
const ClientIPKey contextKey = "client_ip"

func clientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return "unknown"
}
