package handler

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sql-snippets/internal/editor"
	"github.com/sakif/sql-snippets/internal/workspace"
)

// SessionHandler drives the one open workspace view. Every mutating route
// answers with the fresh status so the UI can redraw from a single reply.
type SessionHandler struct {
	session *workspace.Session
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s *workspace.Session, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: s, logger: logger}
}

type textRequest struct {
	Text string `json:"text"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type themeRequest struct {
	Theme string `json:"theme"` // empty toggles
}

type selectionRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type copyResponse struct {
	Text string `json:"text"`
}

func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status(r.Context()))
}

// HandleStatus returns the view snapshot.
//
// HTTP: GET /api/session
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r)
}

// HandleNew creates a default snippet and opens it.
//
// HTTP: POST /api/session/new
func (h *SessionHandler) HandleNew(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.NewSnippet(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleSelect opens a snippet.
//
// HTTP: POST /api/session/select/{id}
func (h *SessionHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Select(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleText applies a user edit to the SQL text.
//
// HTTP: PUT /api/session/text  {"text": "..."}
func (h *SessionHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.session.Edit(req.Text); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleName applies a user edit to the name.
//
// HTTP: PUT /api/session/name  {"name": "..."}
func (h *SessionHandler) HandleName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.session.Rename(req.Name); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleSave saves immediately.
//
// HTTP: POST /api/session/save
func (h *SessionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Save(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleDelete deletes the open snippet and opens the next one.
//
// HTTP: POST /api/session/delete
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Delete(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleFormat formats the buffer in place.
//
// HTTP: POST /api/session/format
func (h *SessionHandler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Format(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleRevert drops unsaved work.
//
// HTTP: POST /api/session/revert
func (h *SessionHandler) HandleRevert(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Revert(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleRecover restores a backup into the view.
//
// HTTP: POST /api/session/recover/{id}
func (h *SessionHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Recover(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleTheme sets the theme by name, or toggles it for an empty body.
//
// HTTP: POST /api/session/theme  {"theme"?: "dark"}
func (h *SessionHandler) HandleTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Theme == "" {
		h.session.ToggleTheme()
	} else if _, err := h.session.SetTheme(req.Theme); err != nil {
		writeError(w, err)
		return
	}
	h.status(w, r)
}

// HandleSelection sets the editor selection.
//
// HTTP: PUT /api/session/selection  {"start": 0, "end": 6}
func (h *SessionHandler) HandleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.session.SelectRange(req.Start, req.End)
	h.status(w, r)
}

// HandleCopy returns the selected text, or the whole buffer.
//
// HTTP: GET /api/session/copy
func (h *SessionHandler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	text, err := h.session.Copy()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, copyResponse{Text: text})
}

// HandleHighlight renders the buffer as an inline-styled HTML fragment.
//
// HTTP: GET /api/session/highlight
func (h *SessionHandler) HandleHighlight(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.session.Highlight(&buf, editor.FormatHTML); err != nil {
		h.logger.Error("highlight failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
