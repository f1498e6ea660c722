package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
)

// otpResendWindow is how long a destination must wait between code
// requests.
const otpResendWindow = time.Minute

// OTPEnqueuer hands code delivery to the worker queue. Satisfied by
// queue.Client.
type OTPEnqueuer interface {
	EnqueueOTPDeliver(p queue.OTPDeliverPayload) error
}

// OTPLimiter gates repeat code requests for the same destination.
// Satisfied by cache.Cache via SetNX.
type OTPLimiter interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

type AuthHandler struct {
	svc      *auth.Service
	otpSvc   *auth.OTPService
	queue    OTPEnqueuer
	limiter  OTPLimiter
	tokenTTL time.Duration
}

func NewAuthHandler(svc *auth.Service, otpSvc *auth.OTPService, qc OTPEnqueuer, limiter OTPLimiter, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{svc: svc, otpSvc: otpSvc, queue: qc, limiter: limiter, tokenTTL: tokenTTL}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName         string `json:"user_name"`
		Email            string `json:"email"`
		Password         string `json:"password"`
		OrganizationName string `json:"organization_name"`
		PhoneNumber      string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.Register(r.Context(), auth.RegisterRequest{
		UserName:         req.UserName,
		Email:            req.Email,
		Password:         req.Password,
		OrganizationName: req.OrganizationName,
		PhoneNumber:      req.PhoneNumber,
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Verification code delivery happens off the request path.
	if err := h.queue.EnqueueOTPDeliver(queue.OTPDeliverPayload{
		Email: user.Email,
		Phone: user.PhoneNumber,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.tokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "token": token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Check reports whether the request carries a valid session. The frontend
// probes it on load, so an unauthenticated request is a normal outcome,
// not an error worth logging.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	claims, err := h.svc.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user_id":       claims.UserID,
		"user_name":     claims.UserName,
	})
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" && req.Phone == "" {
		writeError(w, http.StatusBadRequest, "email or phone required")
		return
	}

	dest := req.Email
	if dest == "" {
		dest = req.Phone
	}
	if h.limiter != nil {
		ok, err := h.limiter.SetNX(r.Context(), "otp:req:"+dest, 1, otpResendWindow)
		if err != nil {
			// Redis being down must not block verification.
			slog.Warn("otp throttle check failed", "error", err)
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "code already sent, retry shortly")
			return
		}
	}

	if err := h.queue.EnqueueOTPDeliver(queue.OTPDeliverPayload{Email: req.Email, Phone: req.Phone}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send code")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code sent"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.otpSvc.Verify(r.Context(), req.Email, req.Phone, req.Code); err != nil {
		if errors.Is(err, auth.ErrOTPInvalid) {
			writeError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
