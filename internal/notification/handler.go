package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/commerce-core/internal/domain/login"
	"github.com/example/commerce-core/internal/email"
	"github.com/example/commerce-core/internal/event"
)

// AccountReader resolves a user id to the account holding the email address.
type AccountReader interface {
	FindByID(ctx context.Context, userID string) (*login.UserAccount, error)
}

// Handler turns consumed domain events into outbound emails.
type Handler struct {
	emailService *email.Service
	accounts     AccountReader
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, accounts AccountReader) *Handler {
	return &Handler{
		emailService: emailSvc,
		accounts:     accounts,
	}
}

// envelope is the consumed shape of event.Envelope; Data stays raw until the
// type is known.
type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch env.Type {
	case event.TypeOrderPlaced:
		return h.handleOrderPlaced(ctx, env.Data)
	case event.TypeOrderPaid:
		return h.handleOrderPaid(ctx, env.Data)
	}

	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, data json.RawMessage) error {
	var e event.OrderPlaced
	if err := json.Unmarshal(data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderID, e.UserID)

	account, err := h.accounts.FindByID(ctx, e.UserID)
	if err != nil {
		log.Printf("[Notifier] Error getting user %s: %v", e.UserID, err)
		return nil
	}

	if err := h.emailService.SendOrderConfirmation(account.Email, e.OrderNumber, e.GrandTotal, nil); err != nil {
		log.Printf("[Notifier] Failed to send confirmation for order %s: %v", e.OrderID, err)
		return nil
	}

	log.Printf("[Notifier] Sent order confirmation to %s for order #%d", account.Email, e.OrderNumber)
	return nil
}

func (h *Handler) handleOrderPaid(ctx context.Context, data json.RawMessage) error {
	var e event.OrderPaid
	if err := json.Unmarshal(data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPaid event: %v", err)
		return err
	}

	account, err := h.accounts.FindByID(ctx, e.UserID)
	if err != nil {
		log.Printf("[Notifier] Error getting user %s: %v", e.UserID, err)
		return nil
	}

	if err := h.emailService.SendPaymentReceipt(account.Email, e.OrderID, e.Amount, e.Provider); err != nil {
		log.Printf("[Notifier] Failed to send receipt for order %s: %v", e.OrderID, err)
		return nil
	}

	log.Printf("[Notifier] Sent payment receipt to %s for order %s", account.Email, e.OrderID)
	return nil
}
