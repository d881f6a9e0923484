package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/relaygram/server/internal/directory"
	"github.com/relaygram/server/internal/metrics"
	"github.com/relaygram/server/internal/session"
	"github.com/relaygram/server/internal/verify"
)

// AuthHandler handles the phone verification and session endpoints.
type AuthHandler struct {
	directory *directory.Directory
	issuer    *verify.Issuer
	sessions  *session.Manager
	metrics   *metrics.Metrics
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(dir *directory.Directory, issuer *verify.Issuer, sessions *session.Manager, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		directory: dir,
		issuer:    issuer,
		sessions:  sessions,
		metrics:   m,
	}
}

type checkPhoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type checkPhoneResponse struct {
	Registered bool   `json:"registered"`
	IsNew      bool   `json:"isNew"`
	Message    string `json:"message"`
}

// HandleCheckPhone handles POST /api/auth/check-phone. A never-seen number
// is registered on the spot; there is no proof of ownership beyond the code
// flow itself, which is a deliberate trust stand-in for SMS delivery.
func (h *AuthHandler) HandleCheckPhone(w http.ResponseWriter, r *http.Request) {
	var req checkPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		respondWithError(w, http.StatusBadRequest, "phoneNumber is required")
		return
	}

	user, err := h.directory.GetOrCreate(r.Context(), req.PhoneNumber)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to register phone number")
		return
	}

	h.issuer.Issue(req.PhoneNumber)
	h.metrics.CodesIssued.Inc()

	respondJSON(w, http.StatusOK, checkPhoneResponse{
		Registered: true,
		IsNew:      !user.HasUsername(),
		Message:    "code sent to server log",
	})
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

type verifyCodeResponse struct {
	Success     bool    `json:"success"`
	SessionID   string  `json:"sessionId"`
	PhoneNumber string  `json:"phoneNumber"`
	Username    *string `json:"username"`
	Message     string  `json:"message"`
}

// HandleVerifyCode handles POST /api/auth/verify-code.
func (h *AuthHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Code = strings.TrimSpace(req.Code)
	if req.PhoneNumber == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "phoneNumber and code are required")
		return
	}

	user, ok := h.directory.Find(req.PhoneNumber)
	if !ok {
		respondWithError(w, http.StatusNotFound, "phone number not found")
		return
	}

	if !h.issuer.Verify(req.PhoneNumber, req.Code) {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	token := h.sessions.Create(req.PhoneNumber)
	h.metrics.SessionsCreated.Inc()

	respondJSON(w, http.StatusOK, verifyCodeResponse{
		Success:     true,
		SessionID:   token,
		PhoneNumber: user.PhoneNumber,
		Username:    user.Username,
		Message:     "logged in",
	})
}

type setUsernameRequest struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// HandleSetUsername handles POST /api/auth/set-username. The token travels
// in the body on this endpoint, matching the client contract.
func (h *AuthHandler) HandleSetUsername(w http.ResponseWriter, r *http.Request) {
	var req setUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Username = strings.TrimSpace(req.Username)
	if req.SessionID == "" || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "sessionId and username are required")
		return
	}

	phone, ok := h.sessions.Resolve(req.SessionID)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "session not found")
		return
	}

	err := h.directory.SetUsername(r.Context(), phone, req.Username)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, directory.ErrAlreadySet):
		respondWithError(w, http.StatusConflict, "username already set")
	case errors.Is(err, directory.ErrUsernameTaken):
		respondWithError(w, http.StatusConflict, "username already taken")
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "failed to set username")
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"username": req.Username,
		})
	}
}

// HandleDebugSession handles GET /api/debug/session: token introspection
// without leaking other users' tokens.
func (h *AuthHandler) HandleDebugSession(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("sessionId")
	phone, valid := h.sessions.Resolve(token)

	var userPhone *string
	if valid {
		userPhone = &phone
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId":     token,
		"valid":         valid,
		"userPhone":     userPhone,
		"totalSessions": h.sessions.Count(),
	})
}
