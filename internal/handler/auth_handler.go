package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"moment-mint/internal/model"
	"moment-mint/internal/service"
	"moment-mint/internal/util"
)

// AuthService is the OTP backend the handler serves.
type AuthService interface {
	CheckMobileNumber(ctx context.Context, mobile string) (string, error)
	VerifyOTP(ctx context.Context, mobile, code string) (*model.SessionRecord, error)
	Authenticate(ctx context.Context, token string) (*model.SessionRecord, error)
	Logout(ctx context.Context, token string) error
}

type sessionKey struct{}

// AuthHandler handles the mobile verification endpoints.
type AuthHandler struct {
	svc    AuthService
	logger *zap.Logger
}

func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the endpoints on r, which is expected to sit under /api.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkMobileNumber", h.CheckMobileNumber)
	r.Post("/verifyOtp", h.VerifyOTP)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireBearer)
		r.Get("/profile/me", h.Profile)
		r.Post("/logout", h.Logout)
	})
}

func (h *AuthHandler) CheckMobileNumber(w http.ResponseWriter, r *http.Request) {
	var req model.CheckMobileNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	start := time.Now()
	requestID, err := h.svc.CheckMobileNumber(r.Context(), util.SanitizeInput(req.MobileNumber))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: true, Message: "OTP sent on WhatsApp"})
	h.logger.Info("OTP requested via HTTP",
		util.String("request_id", requestID),
		util.Duration("duration", time.Since(start)),
	)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	session, err := h.svc.VerifyOTP(r.Context(), util.SanitizeInput(req.MobileNumber), util.SanitizeInput(req.OTP))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, model.APIResponse{
		Status:  true,
		Message: "OTP verified successfully",
		Token:   session.Token,
	})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session, _ := r.Context().Value(sessionKey{}).(*model.SessionRecord)
	if session == nil {
		h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Unauthorized")
		return
	}
	data, err := json.Marshal(model.Profile{MobileNumber: session.MobileNumber, VerifiedAt: session.CreatedAt})
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Server error")
		return
	}
	h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: true, Message: "ok", Data: data})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := r.Context().Value(sessionKey{}).(*model.SessionRecord)
	if session == nil {
		h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), session.Token); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: true, Message: "Logged out"})
}

// RequireBearer resolves "Authorization: Bearer <token>" to a session.
func (h *AuthHandler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Unauthorized")
			return
		}
		session, err := h.svc.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrUnauthorized) {
				status = http.StatusUnauthorized
			}
			h.respondWithError(w, status, err, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, model.APIResponse{Status: false, Message: message, Error: err.Error()})
}

// respondWithServiceError answers input errors with 400 and business
// rejections with 200 and status=false.
func (h *AuthHandler) respondWithServiceError(w http.ResponseWriter, err error) {
	var limited *service.RateLimitError
	switch {
	case errors.As(err, &limited) && limited.RetryAfter > 0:
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		h.respondWithJSON(w, http.StatusOK, model.APIResponse{
			Status:  false,
			Message: fmt.Sprintf("Too many OTP requests, please try again in %ds", seconds),
		})
	case errors.Is(err, service.ErrInvalidMobileNumber):
		h.respondWithError(w, http.StatusBadRequest, err, "Please enter a valid mobile number.")
	case errors.Is(err, service.ErrInvalidOTPFormat):
		h.respondWithError(w, http.StatusBadRequest, err, "Please enter a valid 6-digit OTP.")
	case errors.Is(err, service.ErrOTPMismatch):
		h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: false, Message: "Invalid OTP"})
	case errors.Is(err, service.ErrOTPExpired):
		h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: false, Message: "OTP expired, please request a new one"})
	case errors.Is(err, service.ErrOTPLocked):
		h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: false, Message: "Too many attempts, please try again later"})
	case errors.Is(err, service.ErrRateLimited):
		h.respondWithJSON(w, http.StatusOK, model.APIResponse{Status: false, Message: "Too many OTP requests, please try again later"})
	default:
		h.respondWithError(w, http.StatusInternalServerError, err, "Server error")
	}
}
