package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/service"
)

// SnippetHandler serves /api/cssnippets: feeds, detail, CRUD, visibility,
// versions and the like/collect ledger.
//
// Read routes run behind auth.OptionalAuth, so a valid token adds
// isLiked/isCollected and a missing or bad one just makes the request
// anonymous. Write routes run behind auth.RequireAuth.
type SnippetHandler struct {
	snippets     *service.SnippetService
	interactions *service.InteractionService
	logger       *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, interactions *service.InteractionService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, interactions: interactions, logger: logger}
}

// snippetRequest is the body of POST and PUT.
// A missing "tags" key decodes to nil, which Update reads as "keep".
type snippetRequest struct {
	Title       string   `json:"title"        validate:"required"`
	Description string   `json:"description"`
	CSSContent  string   `json:"css_content"  validate:"required"`
	HTMLContent string   `json:"html_content"`
	Tags        []string `json:"tags"`
	IsPublic    *bool    `json:"is_public"`
}

func (req snippetRequest) input() service.SnippetInput {
	return service.SnippetInput{
		Title:       req.Title,
		Description: req.Description,
		CSSContent:  req.CSSContent,
		HTMLContent: req.HTMLContent,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	}
}

// LikeResponse is the body of every like/unlike call.
type LikeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// CollectResponse is the body of every collect/uncollect call.
type CollectResponse struct {
	Collected        bool `json:"collected"`
	CollectionsCount int  `json:"collections_count"`
}

// VisibilityResponse reports the snippet's visibility after a toggle.
type VisibilityResponse struct {
	IsPublic bool   `json:"is_public"`
	Status   string `json:"status"`
}

func viewer(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

// HandlePopular returns the popularity-ranked feed.
//
// HTTP: GET /api/cssnippets/popular?page=1&limit=12
func (h *SnippetHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.Popular(r.Context(), viewer(r), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleLatest returns public snippets newest first.
//
// HTTP: GET /api/cssnippets/latest?page=1&limit=12
func (h *SnippetHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.Latest(r.Context(), viewer(r), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleSearch matches title, description and tags.
//
// HTTP: GET /api/cssnippets/search?q=gradient&limit=20
func (h *SnippetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.snippets.Search(r.Context(), viewer(r), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/cssnippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.Get(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleVersions lists a snippet's history, newest first.
//
// HTTP: GET /api/cssnippets/{id}/versions
func (h *SnippetHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.snippets.Versions(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// HandleCreate publishes a snippet.
//
// HTTP: POST /api/cssnippets
// REQUEST BODY: {"title": "...", "css_content": "...", "tags": ["a"], "is_public": true}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), viewer(r), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleUpdate edits a snippet and appends a version.
//
// HTTP: PUT /api/cssnippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), viewer(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet (owner or admin).
//
// HTTP: DELETE /api/cssnippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "snippet deleted"})
}

// HandleToggleVisibility flips public/private.
//
// HTTP: PATCH /api/cssnippets/{id}/visibility
func (h *SnippetHandler) HandleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	public, err := h.snippets.ToggleVisibility(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := model.StatusActive
	if !public {
		status = model.StatusPrivate
	}
	writeJSON(w, http.StatusOK, VisibilityResponse{IsPublic: public, Status: status})
}

// =========================================================================
// LEDGER ROUTES
// =========================================================================
//
// POST adds, DELETE removes, POST .../toggle does whichever applies. A
// POST on an existing row or a DELETE on a missing one answers 400 with
// code "conflict".

func (h *SnippetHandler) like(op func(*http.Request) (model.InteractionState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := op(r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, LikeResponse{Liked: st.Active, LikesCount: st.Count})
	}
}

func (h *SnippetHandler) collect(op func(*http.Request) (model.InteractionState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := op(r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CollectResponse{Collected: st.Active, CollectionsCount: st.Count})
	}
}

// HTTP: POST /api/cssnippets/{id}/like
func (h *SnippetHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.like(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Like(r.Context(), viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}

// HTTP: DELETE /api/cssnippets/{id}/like
func (h *SnippetHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	h.like(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Unlike(r.Context(), viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}

// HTTP: POST /api/cssnippets/{id}/like/toggle
func (h *SnippetHandler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	h.like(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Toggle(r.Context(), model.Like, viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}

// HTTP: POST /api/cssnippets/{id}/collect
func (h *SnippetHandler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	h.collect(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Collect(r.Context(), viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}

// HTTP: DELETE /api/cssnippets/{id}/collect
func (h *SnippetHandler) HandleUncollect(w http.ResponseWriter, r *http.Request) {
	h.collect(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Uncollect(r.Context(), viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}

// HTTP: POST /api/cssnippets/{id}/collect/toggle
func (h *SnippetHandler) HandleToggleCollect(w http.ResponseWriter, r *http.Request) {
	h.collect(func(r *http.Request) (model.InteractionState, error) {
		return h.interactions.Toggle(r.Context(), model.Collect, viewer(r), chi.URLParam(r, "id"))
	})(w, r)
}
