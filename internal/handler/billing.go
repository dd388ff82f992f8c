package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/sql-snippets/internal/auth"
	"github.com/sakif/sql-snippets/internal/billing"
	"github.com/sakif/sql-snippets/internal/service"
)

// BillingHandler serves the paid-tier checkout and the processor webhook.
type BillingHandler struct {
	billing   *service.BillingService
	returnURL string
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. returnURL is the app origin
// the processor sends the browser back to; when empty the request's own
// origin is used.
func NewBillingHandler(svc *service.BillingService, returnURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: svc, returnURL: returnURL, logger: logger}
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// HandleCheckout opens a checkout session for the logged-in user.
//
// HTTP: POST /api/billing/checkout  (RequireAuth)
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	url, err := h.billing.Checkout(r.Context(), userID, h.origin(r))
	if err != nil {
		h.logger.Error("checkout failed", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// HandleWebhook receives processor events. The raw body is verified before
// it is parsed, so it must not be decoded or re-encoded on the way in.
//
// HTTP: POST /webhooks/stripe
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(billing.SignatureHeader)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *BillingHandler) origin(r *http.Request) string {
	if h.returnURL != "" {
		return h.returnURL
	}
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
