package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds the Stripe credentials.
type StripeConfig struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
	APIURL        string // overrides https://api.stripe.com; empty keeps the default
}

// Stripe is the Processor backed by stripe-go.
type Stripe struct {
	api           *client.API
	priceID       string
	webhookSecret string
}

var _ Processor = (*Stripe)(nil)

// NewStripe returns a Stripe processor. The webhook secret is required;
// the secret key and price only matter for CreateCheckout.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("billing: stripe webhook secret is required")
	}
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		api := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(cfg.APIURL),
		})
		backends = &stripe.Backends{API: api, Connect: api, Uploads: api}
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		priceID:       cfg.PriceID,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// CreateCheckout opens a one-off payment session for the configured price
// and returns the hosted checkout URL.
func (s *Stripe) CreateCheckout(ctx context.Context, p CheckoutParams) (string, error) {
	if s.priceID == "" {
		return "", errors.New("billing: stripe price id is not configured")
	}
	base := strings.TrimRight(p.ReturnURL, "/")

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.priceID),
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(p.UserID),
		SuccessURL:        stripe.String(base + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(base + "/payment/cancel"),
	}
	if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.AddMetadata("userId", p.UserID)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: creating checkout session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the signature header against the raw payload and
// decodes the event. The account API version is not checked against the
// library's.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("billing: decoding checkout session: %w", err)
	}
	out.SessionID = sess.ID
	out.UserID = sess.ClientReferenceID
	if out.UserID == "" {
		out.UserID = sess.Metadata["userId"]
	}
	return out, nil
}
