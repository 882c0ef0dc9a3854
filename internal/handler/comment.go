package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/csstoy/internal/service"
)

type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type createCommentRequest struct {
	SnippetID string `json:"cssnippet_id" validate:"required"`
	Content   string `json:"content"      validate:"required"`
	ParentID  string `json:"parent_id"`
}

// HandleTree returns a snippet's comments nested by reply.
//
// HTTP: GET /api/comments/cssnippet/{id}
func (h *CommentHandler) HandleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.comments.Tree(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// HandleGet returns one comment.
//
// HTTP: GET /api/comments/{id}
func (h *CommentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	comment, err := h.comments.Get(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// HandleCreate posts a comment or a reply.
//
// HTTP: POST /api/comments
// REQUEST BODY: {"cssnippet_id": "...", "content": "...", "parent_id": "..."}
func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.comments.Create(r.Context(), viewer(r), service.CommentInput{
		SnippetID: req.SnippetID,
		Content:   req.Content,
		ParentID:  req.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// HandleDelete removes a comment and its replies (author or admin).
//
// HTTP: DELETE /api/comments/{id}
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.comments.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "comment deleted"})
}
