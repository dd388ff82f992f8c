// Package billing talks to the payment processor: it opens checkout
// sessions for the paid tier and verifies the webhook that confirms them.
//
// Nothing here touches the users table. The service layer decides what a
// verified payment means for an account.
package billing

import (
	"context"
	"errors"
)

// EventCheckoutCompleted is the webhook event that marks a payment done.
const EventCheckoutCompleted = "checkout.session.completed"

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// CheckoutParams describes one paid-tier purchase.
type CheckoutParams struct {
	UserID    string
	Email     string
	ReturnURL string // app origin; success and cancel pages hang off it
}

// Event is a verified webhook event reduced to what the app acts on.
type Event struct {
	ID        string
	Type      string
	SessionID string
	UserID    string // client_reference_id, falling back to metadata.userId
}

// Processor is the payment processor boundary.
type Processor interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (url string, err error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
