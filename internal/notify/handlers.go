package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Sender consumes notification tasks.
type Sender struct {
	renderer *Renderer
	channel  Channel
	logger   *slog.Logger
}

// NewSender constructs Sender.
func NewSender(renderer *Renderer, channel Channel, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{renderer: renderer, channel: channel, logger: logger}
}

// HandleOrderReady processes TaskOrderReady.
func (s *Sender) HandleOrderReady(ctx context.Context, t *asynq.Task) error {
	var p OrderReadyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	text := s.renderer.OrderReady(p)
	return s.deliver(ctx, Message{
		Kind:       "order_ready",
		OrderID:    p.OrderID,
		CustomerID: p.CustomerID,
		To:         p.CustomerContact,
		Text:       text,
		Link:       WhatsAppLink(p.CustomerContact, text),
	})
}

// HandlePaymentReminder processes TaskPaymentReminder.
func (s *Sender) HandlePaymentReminder(ctx context.Context, t *asynq.Task) error {
	var p ReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if !p.RemainingAmount.IsPositive() {
		return nil
	}
	text := s.renderer.PaymentReminder(p)
	return s.deliver(ctx, Message{
		Kind:       "payment_reminder",
		CustomerID: p.CustomerID,
		To:         p.CustomerContact,
		Text:       text,
		Link:       WhatsAppLink(p.CustomerContact, text),
	})
}

func (s *Sender) deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		s.logger.WarnContext(ctx, "message skipped, no contact", slog.String("kind", msg.Kind), slog.Int64("customer_id", msg.CustomerID))
		return nil
	}
	if err := s.channel.Deliver(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "deliver message", slog.String("kind", msg.Kind), slog.Int64("customer_id", msg.CustomerID), slog.Any("error", err))
		return err
	}
	return nil
}
