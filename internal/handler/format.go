package handler

import (
	"net/http"

	"github.com/sakif/sql-snippets/internal/format"
	"github.com/sakif/sql-snippets/internal/metrics"
)

// FormatHandler pretty-prints SQL without touching any stored snippet.
type FormatHandler struct {
	formatter format.Formatter
	metrics   metrics.Recorder
}

// NewFormatHandler creates a FormatHandler.
func NewFormatHandler(f format.Formatter, m metrics.Recorder) *FormatHandler {
	return &FormatHandler{formatter: f, metrics: m}
}

type formatRequest struct {
	SQL string `json:"sql"`
}

type formatResponse struct {
	SQL string `json:"sql"`
}

// HandleFormat returns the formatted text, or 422 with the parser message.
//
// HTTP: POST /api/format  {"sql": "..."}
func (h *FormatHandler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.formatter.Format(req.SQL)
	h.metrics.IncFormat(err == nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatResponse{SQL: out})
}
