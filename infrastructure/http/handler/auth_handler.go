package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gatekey/gatekey/application/port/inbound"
	"github.com/gatekey/gatekey/application/port/outbound"
	"github.com/gatekey/gatekey/application/usecase"
	"github.com/gatekey/gatekey/domain/autherr"
	"github.com/gatekey/gatekey/infrastructure/http/middleware"
	"github.com/gatekey/gatekey/infrastructure/http/response"
	"github.com/gatekey/gatekey/infrastructure/http/validator"
)

type AuthHandler struct {
	authUseCase inbound.AuthUseCase
	sessions    *middleware.SessionMiddleware
}

func NewAuthHandler(authUseCase inbound.AuthUseCase, sessions *middleware.SessionMiddleware) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
		sessions:    sessions,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if !validator.ValidateEmail(req.Email) {
		response.UnprocessableEntity(w, "Invalid email format")
		return
	}
	if !validator.ValidateRequired(req.Password) {
		response.UnprocessableEntity(w, "Password is required")
		return
	}

	ctx := context.WithValue(r.Context(), usecase.ClientIPKey, getClientIP(r))

	loginRes, err := h.authUseCase.Login(ctx, inbound.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTooManyAttempts):
			w.Header().Set("Retry-After", "900")
			response.Error(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		case errors.Is(err, usecase.ErrInvalidCredentials):
			response.Unauthorized(w, "Invalid email or password")
		default:
			response.InternalServerError(w, "Internal server error")
		}
		return
	}

	h.sessions.SetTokenCookies(w, loginRes.AccessToken, loginRes.RefreshToken)

	response.Success(w, http.StatusOK, "success", loginRes)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if !validator.ValidateEmail(req.Email) {
		response.UnprocessableEntity(w, "Invalid email format")
		return
	}
	if !validator.ValidatePassword(req.Password) {
		response.UnprocessableEntity(w, "Password must be at least 8 characters and contain upper case, lower case, a digit and a special character")
		return
	}

	user, err := h.authUseCase.Register(r.Context(), inbound.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, outbound.ErrUserAlreadyExists):
			response.Conflict(w, "Email is already registered")
		default:
			response.InternalServerError(w, "Internal server error")
		}
		return
	}

	response.Success(w, http.StatusCreated, "success", user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := extractRefreshCarrier(r)
	if refreshToken == "" {
		response.Unauthorized(w, "Refresh token required")
		return
	}

	refreshRes, err := h.authUseCase.Refresh(r.Context(), inbound.RefreshRequest{
		RefreshToken: refreshToken,
	})
	if err != nil {
		switch autherr.KindOf(err) {
		case autherr.KindStoreError:
			response.Error(w, http.StatusServiceUnavailable, "Authentication temporarily unavailable")
		case autherr.KindMissingCarrier:
			response.Unauthorized(w, "Refresh token required")
		case autherr.KindOther:
			response.InternalServerError(w, "Internal server error")
		default:
			response.Unauthorized(w, "Invalid or expired refresh token")
		}
		return
	}

	h.sessions.SetTokenCookies(w, refreshRes.AccessToken, refreshRes.RefreshToken)

	response.Success(w, http.StatusOK, "success", TokenResponse{
		AccessToken: refreshRes.AccessToken,
		ExpiresIn:   refreshRes.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := extractRefreshCarrier(r)

	if refreshToken != "" {
		err := h.authUseCase.Logout(r.Context(), inbound.LogoutRequest{
			RefreshToken: refreshToken,
		})
		if err != nil {
			if autherr.KindOf(err) == autherr.KindStoreError {
				// The revocation record may still be live; tell the client
				// to retry instead of pretending the logout succeeded.
				response.Error(w, http.StatusServiceUnavailable, "Logout temporarily unavailable")
				return
			}
			response.InternalServerError(w, "Internal server error")
			return
		}
	}

	h.sessions.ClearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	state := middleware.SessionFromContext(r.Context())
	if !state.Authenticated() {
		response.Unauthorized(w, "User not authenticated")
		return
	}

	meRes, err := h.authUseCase.Me(r.Context(), state.Email)
	if err != nil {
		switch {
		case errors.Is(err, outbound.ErrUserNotFound):
			response.NotFound(w, "User not found")
		default:
			response.InternalServerError(w, "Internal server error")
		}
		return
	}

	response.Success(w, http.StatusOK, "success", meRes)
}

// extractRefreshCarrier reads the refresh token from the cookie, falling
// back to the Refresh-Token header for non-browser clients.
func extractRefreshCarrier(r *http.Request) string {
	if cookie, err := r.Cookie(middleware.RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("Refresh-Token")
}

// getClientIP extracts the caller's IP, preferring proxy headers.
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
