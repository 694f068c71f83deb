// Package mockserver is an in-memory stand-in for the account service,
// implementing the REST surface the SDK consumes so the CLI and examples run
// without the real backend. Accounts, tokens and profiles live only for the
// process lifetime.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/videocms/authkit/internal/logging"
	"github.com/videocms/authkit/session"
)

// Handler implements the account endpoints over an in-memory store.
type Handler struct {
	store *accountStore
}

// NewHandler constructs a Handler with an empty account store.
func NewHandler() *Handler {
	return &Handler{store: newAccountStore()}
}

// RegisterRoutes wires the account endpoints into the provided ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /user", h.register)
	mux.HandleFunc("POST /user/login", h.login)
	mux.HandleFunc("POST /token/validate", h.validate)
	mux.HandleFunc("POST /user/reset", h.reset)
	mux.HandleFunc("PUT /user/{id}/email", h.updateEmail)
	mux.HandleFunc("PUT /user/{id}/password", h.updatePassword)
	mux.HandleFunc("GET /user/{id}", h.profile)
	mux.HandleFunc("PUT /user/{id}", h.updateProfile)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	Favourites []json.RawMessage `json:"favourite"`
	Playlist   []json.RawMessage `json:"playlist"`
}

type wireUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type wireProfile struct {
	ID         string            `json:"id"`
	Favourites []json.RawMessage `json:"favourite"`
	Playlist   []json.RawMessage `json:"playlist"`
}

func userPayload(acct *account) map[string]wireUser {
	return map[string]wireUser{"user": {ID: acct.ID, Email: acct.Email, Token: acct.Token}}
}

func profilePayload(acct *account) map[string]wireProfile {
	favourites := acct.Favourites
	if favourites == nil {
		favourites = []json.RawMessage{}
	}
	playlist := acct.Playlist
	if playlist == nil {
		playlist = []json.RawMessage{}
	}
	return map[string]wireProfile{"profile": {ID: acct.ID, Favourites: favourites, Playlist: playlist}}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	acct, err := h.store.register(req.Email, req.Password)
	if errors.Is(err, errAccountExists) {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "email already registered"})
		return
	}
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, userPayload(acct))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	acct, err := h.store.login(req.Email, req.Password)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userPayload(acct))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	acct, err := h.store.findByToken(req.Token)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "token expired or revoked"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userPayload(acct))
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	// Whether the account exists is deliberately not disclosed.
	if h.store.hasEmail(req.Email) {
		logging.FromContext(ctx).Info("password reset requested", "email", req.Email)
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that email, reset instructions have been sent.",
	})
}

func (h *Handler) updateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	if err := h.store.updateEmail(acct.ID, req.Email); err != nil {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "email already in use"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userPayload(acct))
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	if err := h.store.updatePassword(acct.ID, req.Password); err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update password"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userPayload(acct))
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, ok := h.authorized(w, r)
	if !ok {
		return
	}

	respondJSON(ctx, w, http.StatusOK, profilePayload(acct))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid profile body"})
		return
	}

	if err := h.store.replaceProfile(acct.ID, req.Favourites, req.Playlist); err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, profilePayload(acct))
}

// authorized resolves the path's account and checks the X-Token header,
// writing the error response itself when the check fails.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (*account, bool) {
	ctx := r.Context()

	acct, err := h.store.authorize(r.PathValue("id"), r.Header.Get(session.HeaderToken))
	if errors.Is(err, errAccountNotFound) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return nil, false
	}
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return nil, false
	}
	return acct, true
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
