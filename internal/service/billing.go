package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/billing"
	"github.com/sakif/sql-snippets/internal/repository"
)

// ErrAlreadyPaid is returned by Checkout for an account that is already
// upgraded.
var ErrAlreadyPaid = &apperror.AppError{
	Err:     apperror.ErrConflict,
	Message: "account is already upgraded",
}

// BillingService runs the paid-tier upgrade.
//
// The isPaid flag only flips in HandleWebhook, after the processor has
// verified the signature. The checkout redirect itself proves nothing.
type BillingService struct {
	users     repository.UserRepository
	processor billing.Processor
	logger    *slog.Logger
}

// NewBillingService wires a BillingService.
func NewBillingService(users repository.UserRepository, processor billing.Processor, logger *slog.Logger) *BillingService {
	return &BillingService{users: users, processor: processor, logger: logger}
}

// Checkout opens a checkout session for userID and returns its URL.
func (s *BillingService) Checkout(ctx context.Context, userID, returnURL string) (string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("service/billing: fetching user %s: %w", userID, err)
	}
	if user.IsPaid {
		return "", ErrAlreadyPaid
	}

	url, err := s.processor.CreateCheckout(ctx, billing.CheckoutParams{
		UserID:    user.ID,
		Email:     user.Email,
		ReturnURL: returnURL,
	})
	if err != nil {
		return "", fmt.Errorf("service/billing: %w", err)
	}

	s.logger.Info("checkout session created", slog.String("userID", user.ID))
	return url, nil
}

// HandleWebhook verifies a processor event and applies it. A completed
// checkout marks its user as paid; any other event type is ignored. A bad
// signature is a validation error.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			s.logger.Warn("rejected webhook", slog.String("error", err.Error()))
			return &apperror.AppError{Err: apperror.ErrValidation, Message: "invalid webhook signature", Cause: err}
		}
		return fmt.Errorf("service/billing: %w", err)
	}

	if ev.Type != billing.EventCheckoutCompleted {
		s.logger.Debug("ignoring webhook event", slog.String("type", ev.Type), slog.String("id", ev.ID))
		return nil
	}
	if ev.UserID == "" {
		return apperror.ValidationFailed("client_reference_id", "checkout session has no user reference")
	}

	if err := s.users.SetPaid(ctx, ev.UserID, true); err != nil {
		return fmt.Errorf("service/billing: marking user %s paid: %w", ev.UserID, err)
	}
	s.logger.Info("user upgraded",
		slog.String("userID", ev.UserID),
		slog.String("session", ev.SessionID),
	)
	return nil
}
