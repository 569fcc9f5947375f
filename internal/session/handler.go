package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// detail texts returned to clients; every 401 shares one text
const (
	detailUnauthorized     = "invalid credentials"
	detailForbidden        = "not allowed to perform this action"
	detailPasswordMismatch = "passwords do not match"
	detailNotFound         = "user not found"
	detailUnavailable      = "service temporarily unavailable"
	detailInternal         = "internal server error"
	detailInvalidPayload   = "invalid payload"
	detailBodyTooLarge     = "request body too large"
)

// JSON request bodies larger than this are rejected with 413.
const maxBodyBytes = 1 << 20

// Handler exposes the session authority over HTTP.
type Handler struct {
	authority *Authority
	logger    *zap.SugaredLogger
}

func NewHandler(a *Authority, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{authority: a, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the new bearer token and the sanitized account.
type LoginResponse struct {
	User        entity.View `json:"user"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
}

// ChangePasswordRequest password change payload.
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.authority.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{
		User:        res.User,
		AccessToken: res.Token.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.authority.codec.TTL().Seconds()),
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	acting, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, auth.ErrInvalidToken)
		return
	}
	targetID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "invalid user id"})
		return
	}
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err = h.authority.ChangePassword(r.Context(), acting, ChangePasswordInput{
		TargetUserID:       targetID,
		CurrentPassword:    req.CurrentPassword,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, auth.ErrInvalidToken)
		return
	}
	if err := h.authority.Logout(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// Me returns the identity behind the bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, auth.ErrInvalidToken)
		return
	}
	h.writeJSON(w, http.StatusOK, id)
}

// RequireAuth rejects requests without a currently valid bearer token and
// stores the authenticated identity in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.writeError(w, auth.E("session.RequireAuth", auth.KindInvalidToken, errors.New("missing bearer token")))
			return
		}
		id, err := h.authority.Authenticate(r.Context(), token)
		if err != nil {
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// decode reads a JSON body of at most maxBodyBytes into v. On failure it
// writes the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Detail: detailBodyTooLarge})
		return false
	}
	h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: detailInvalidPayload})
	return false
}

// StatusFor maps an error to its HTTP status and client-facing detail.
func StatusFor(err error) (int, string) {
	kind := auth.KindOf(err)
	switch {
	case kind.Unauthorized():
		return http.StatusUnauthorized, detailUnauthorized
	case kind == auth.KindForbidden:
		return http.StatusForbidden, detailForbidden
	case kind == auth.KindPasswordMismatch:
		return http.StatusBadRequest, detailPasswordMismatch
	case kind == auth.KindNotFound:
		return http.StatusNotFound, detailNotFound
	case kind == auth.KindStoreUnavailable:
		return http.StatusServiceUnavailable, detailUnavailable
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, detail := StatusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Warnw("request failed", "status", status, "err", err)
	default:
		h.logger.Debugw("request rejected", "status", status, "kind", auth.KindOf(err).String(), "err", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	h.writeJSON(w, status, errorResponse{Detail: detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
