package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sql-snippets/internal/archive"
	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/store"
)

// SnippetHandler serves snippet CRUD, search, and export/import.
type SnippetHandler struct {
	store  *store.Store
	codec  *archive.Codec
	logger *slog.Logger
	now    func() time.Time
}

// NewSnippetHandler creates a SnippetHandler.
func NewSnippetHandler(st *store.Store, codec *archive.Codec, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{store: st, codec: codec, logger: logger, now: time.Now}
}

type createSnippetRequest struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// updateSnippetRequest uses pointers so an absent field leaves the stored
// value alone while "sql": "" clears it.
type updateSnippetRequest struct {
	Name *string `json:"name"`
	SQL  *string `json:"sql"`
}

// HandleList returns all snippets, most recent first, or the matches for ?q=.
//
// HTTP: GET /api/snippets?q=
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, h.store.Search(r.Context(), q))
}

// HandleGetByID returns one snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	sn, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets  {"name": "...", "sql": "..."}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.store.Create(r.Context(), req.Name, req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("snippet created", slog.String("id", sn.ID))
	writeJSON(w, http.StatusCreated, sn)
}

// HandleUpdate merges the given fields into a snippet.
//
// HTTP: PUT /api/snippets/{id}  {"name"?: "...", "sql"?: "..."}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateSnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), model.SnippetUpdate{
		Name: req.Name,
		SQL:  req.SQL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleDelete removes a snippet: 204 when removed, 404 when there was none.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("snippet not found with id %s", id),
		})
		return
	}
	h.logger.Info("snippet deleted", slog.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport downloads every snippet as a JSON array, zstd-compressed
// when ?compress=true.
//
// HTTP: GET /api/export?compress=
func (h *SnippetHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	compress, _ := strconv.ParseBool(r.URL.Query().Get("compress"))

	data, err := h.store.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := "application/json"
	if compress {
		data = h.codec.Compress(data)
		contentType = "application/zstd"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", archive.FileName(h.now(), compress)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("export write failed", slog.String("error", err.Error()))
	}
}

// HandleImport replaces the collection with an uploaded export. The body
// may be plain JSON or zstd. A rejected file gets 400 with the result.
//
// HTTP: POST /api/import
func (h *SnippetHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.codec.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ImportResult{Message: "Invalid JSON format"})
		return
	}

	res, err := h.store.Import(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	h.logger.Info("snippets imported", slog.Int("count", res.Count))
	writeJSON(w, http.StatusOK, res)
}
