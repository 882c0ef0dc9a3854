package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/csstoy/internal/service"
)

// UserHandler serves /api/users: the signed-in user's profile, password
// and personal snippet lists. Every route requires auth.
type UserHandler struct {
	users    *service.UserService
	snippets *service.SnippetService
	logger   *slog.Logger
}

func NewUserHandler(users *service.UserService, snippets *service.SnippetService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, snippets: snippets, logger: logger}
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"     validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// HTTP: GET /api/users/profile
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Profile(r.Context(), viewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PUT /api/users/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), viewer(r), req.Username, req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PUT /api/users/password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := h.users.ChangePassword(r.Context(), viewer(r), req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password changed"})
}

// HTTP: GET /api/users/my-cssnippets?page&limit
func (h *UserHandler) HandleMySnippets(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.Mine(r.Context(), viewer(r), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: GET /api/users/liked-cssnippets?page&limit
func (h *UserHandler) HandleLiked(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.Liked(r.Context(), viewer(r), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HTTP: GET /api/users/collected-cssnippets?page&limit
func (h *UserHandler) HandleCollected(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.Collected(r.Context(), viewer(r), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
