package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"civicgate/internal/lockout"
	dErrors "civicgate/pkg/domain-errors"
	"civicgate/pkg/platform/httputil"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Device      string `json:"device,omitempty"`
}

// handleLogin authenticates a user. Lockout denials get a Retry-After header
// alongside the human-readable remaining-time hint in the body.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email and password are required"))
		return
	}

	result, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeRateLimited {
			h.setRetryAfter(w, r, req.Email)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
		Device:      result.Device,
	})
}

func (h *Handler) setRetryAfter(w http.ResponseWriter, r *http.Request, email string) {
	remaining, err := h.lockouts.RemainingLockout(r.Context(), email)
	if err != nil || remaining <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())))
}

// handleLockoutStatus reports the lockout state for an identifier; used by
// support tooling behind the internal network boundary.
func (h *Handler) handleLockoutStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier query parameter is required"))
		return
	}

	locked, err := h.lockouts.IsLocked(ctx, identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attempts, err := h.lockouts.FailedAttempts(ctx, identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	remaining, err := h.lockouts.RemainingLockout(ctx, identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"identifier":        lockout.Normalize(identifier),
		"locked":            locked,
		"failed_attempts":   attempts,
		"remaining_seconds": int(remaining.Seconds()),
	})
}

// handleUnlock clears a lockout; support tooling only.
func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier is required"))
		return
	}
	if err := h.lockouts.Clear(r.Context(), req.Identifier); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
