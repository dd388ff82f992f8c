package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/store"
)

// BackupHandler serves the recovery side channel.
type BackupHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBackupHandler creates a BackupHandler.
func NewBackupHandler(st *store.Store, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{store: st, logger: logger}
}

// backupView adds the comparison the recovery prompt shows.
type backupView struct {
	model.Backup
	Unsaved bool `json:"unsaved"`
}

// HandleList returns every backup, newest first.
//
// HTTP: GET /api/backups
func (h *BackupHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	backups := h.store.ListBackups(r.Context())
	out := make([]backupView, len(backups))
	for i, b := range backups {
		out[i] = backupView{Backup: b, Unsaved: h.store.HasUnsavedChanges(r.Context(), b.SnippetID)}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet returns the backup for one snippet id.
//
// HTTP: GET /api/backups/{id}
func (h *BackupHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := h.store.GetBackup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backupView{Backup: *b, Unsaved: h.store.HasUnsavedChanges(r.Context(), id)})
}

// HandleDelete discards a backup. Discarding a missing one is not an error.
//
// HTTP: DELETE /api/backups/{id}
func (h *BackupHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearBackup(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecover applies a backup to its snippet and returns the result.
//
// HTTP: POST /api/backups/{id}/recover
func (h *BackupHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	sn, err := h.store.Recover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("backup recovered", slog.String("id", sn.ID))
	writeJSON(w, http.StatusOK, sn)
}
