package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/chat"
)

type AccountHandler struct {
	authSvc *auth.Service
	chatSvc *chat.Service
}

func NewAccountHandler(authSvc *auth.Service, chatSvc *chat.Service) *AccountHandler {
	return &AccountHandler{authSvc: authSvc, chatSvc: chatSvc}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.authSvc.GetUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName         string `json:"user_name"`
		OrganizationName string `json:"organization_name"`
		PhoneNumber      string `json:"phone_number"`
		Password         string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authSvc.UpdateAccount(r.Context(), auth.UserIDFromContext(r.Context()), auth.AccountUpdate{
		UserName:         req.UserName,
		OrganizationName: req.OrganizationName,
		PhoneNumber:      req.PhoneNumber,
		Password:         req.Password,
	})
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete removes the account: every chat and its index entries go first,
// then the user row, then the session cookie.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	if err := h.chatSvc.DeleteAll(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove chats")
		return
	}
	if err := h.authSvc.DeleteAccount(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove account")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "account deleted"})
}
