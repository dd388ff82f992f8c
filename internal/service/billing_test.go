package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/billing"
	"github.com/sakif/sql-snippets/internal/model"
)

// fakeProcessor accepts only the signature "good" and returns event.
type fakeProcessor struct {
	event       *billing.Event
	checkoutErr error
	lastParams  billing.CheckoutParams
}

func (p *fakeProcessor) CreateCheckout(_ context.Context, params billing.CheckoutParams) (string, error) {
	p.lastParams = params
	if p.checkoutErr != nil {
		return "", p.checkoutErr
	}
	return "https://checkout.example.com/cs_1", nil
}

func (p *fakeProcessor) ParseWebhook(_ []byte, signature string) (*billing.Event, error) {
	if signature != "good" {
		return nil, billing.ErrInvalidSignature
	}
	return p.event, nil
}

func newTestBilling(t *testing.T) (*BillingService, *fakeUserRepo, *fakeProcessor, *model.User) {
	t.Helper()
	repo := newFakeUserRepo()
	user := &model.User{GitHubID: 1, Login: "payer", Email: "payer@example.com"}
	if err := repo.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	proc := &fakeProcessor{}
	return NewBillingService(repo, proc, discardLogger()), repo, proc, user
}

func TestCheckout(t *testing.T) {
	svc, _, proc, user := newTestBilling(t)

	url, err := svc.Checkout(context.Background(), user.ID, "https://app.example.com")
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if url != "https://checkout.example.com/cs_1" {
		t.Errorf("Checkout() url = %q", url)
	}
	want := billing.CheckoutParams{UserID: user.ID, Email: "payer@example.com", ReturnURL: "https://app.example.com"}
	if proc.lastParams != want {
		t.Errorf("processor params = %+v, want %+v", proc.lastParams, want)
	}
}

func TestCheckout_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		svc, _, _, _ := newTestBilling(t)
		if _, err := svc.Checkout(ctx, "nobody", ""); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("already paid", func(t *testing.T) {
		svc, repo, _, user := newTestBilling(t)
		_ = repo.SetPaid(ctx, user.ID, true)
		if _, err := svc.Checkout(ctx, user.ID, ""); !errors.Is(err, apperror.ErrConflict) {
			t.Errorf("error = %v, want ErrConflict", err)
		}
	})

	t.Run("processor failure", func(t *testing.T) {
		svc, _, proc, user := newTestBilling(t)
		proc.checkoutErr = errors.New("stripe is down")
		if _, err := svc.Checkout(ctx, user.ID, ""); !errors.Is(err, proc.checkoutErr) {
			t.Errorf("error = %v, want the processor error", err)
		}
	})
}

func TestHandleWebhook_CompletedMarksPaid(t *testing.T) {
	svc, repo, proc, user := newTestBilling(t)
	ctx := context.Background()
	proc.event = &billing.Event{ID: "evt_1", Type: billing.EventCheckoutCompleted, UserID: user.ID}

	if err := svc.HandleWebhook(ctx, []byte("{}"), "good"); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	got, _ := repo.GetUserByID(ctx, user.ID)
	if !got.IsPaid {
		t.Error("completed checkout did not mark the user paid")
	}
}

func TestHandleWebhook_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature", func(t *testing.T) {
		svc, repo, proc, user := newTestBilling(t)
		proc.event = &billing.Event{Type: billing.EventCheckoutCompleted, UserID: user.ID}

		err := svc.HandleWebhook(ctx, []byte("{}"), "forged")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Fatalf("error = %v, want ErrValidation", err)
		}
		if got, _ := repo.GetUserByID(ctx, user.ID); got.IsPaid {
			t.Error("forged webhook marked the user paid")
		}
	})

	t.Run("other event type", func(t *testing.T) {
		svc, repo, proc, user := newTestBilling(t)
		proc.event = &billing.Event{Type: "invoice.paid", UserID: user.ID}

		if err := svc.HandleWebhook(ctx, []byte("{}"), "good"); err != nil {
			t.Fatalf("HandleWebhook() error = %v", err)
		}
		if got, _ := repo.GetUserByID(ctx, user.ID); got.IsPaid {
			t.Error("unrelated event marked the user paid")
		}
	})

	t.Run("missing user reference", func(t *testing.T) {
		svc, _, proc, _ := newTestBilling(t)
		proc.event = &billing.Event{Type: billing.EventCheckoutCompleted}

		if err := svc.HandleWebhook(ctx, []byte("{}"), "good"); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _, proc, _ := newTestBilling(t)
		proc.event = &billing.Event{Type: billing.EventCheckoutCompleted, UserID: "ghost"}

		if err := svc.HandleWebhook(ctx, []byte("{}"), "good"); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}
