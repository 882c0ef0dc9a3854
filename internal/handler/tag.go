package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/csstoy/internal/service"
)

type TagHandler struct {
	tags     *service.TagService
	snippets *service.SnippetService
	logger   *slog.Logger
}

func NewTagHandler(tags *service.TagService, snippets *service.SnippetService, logger *slog.Logger) *TagHandler {
	return &TagHandler{tags: tags, snippets: snippets, logger: logger}
}

// HTTP: GET /api/tags/popular?limit=20
func (h *TagHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.Popular(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HTTP: GET /api/tags/search?q=fl&limit=10
func (h *TagHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HandleSnippets lists public snippets carrying the tag, newest first.
//
// HTTP: GET /api/tags/{name}/cssnippets?page=1&limit=12
func (h *TagHandler) HandleSnippets(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.ByTag(r.Context(), viewer(r), chi.URLParam(r, "name"), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
