package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kudzaim/zimcart/internal/domain"
)

// NotificationHandler turns committed order status changes into buyer-facing
// email and SMS. Dispatch is best-effort downstream of the status write;
// failures here never touch order state.
type NotificationHandler struct {
	notifierURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewNotificationHandler(notifierURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifierURL: notifierURL,
		httpClient:  client,
		logger:      logger,
	}
}

type message struct {
	subject string
	body    string
}

func composeMessage(event domain.OrderStatusChangedEvent) (message, bool) {
	switch event.Status {
	case domain.OrderStatusConfirmed:
		return message{
			subject: "Order Confirmed: " + event.OrderID,
			body:    fmt.Sprintf("Your order %s has been confirmed.", event.OrderID),
		}, true
	case domain.OrderStatusPaid:
		return message{
			subject: "Payment Received: " + event.OrderID,
			body:    fmt.Sprintf("We have received your payment of %s for order %s.", event.Total, event.OrderID),
		}, true
	case domain.OrderStatusShipped:
		return message{
			subject: "Order Shipped: " + event.OrderID,
			body:    fmt.Sprintf("Your order %s is on its way.", event.OrderID),
		}, true
	case domain.OrderStatusDelivered:
		return message{
			subject: "Order Delivered: " + event.OrderID,
			body:    fmt.Sprintf("Your order %s has been delivered. Thank you for shopping with us.", event.OrderID),
		}, true
	case domain.OrderStatusCancelled:
		return message{
			subject: "Order Cancelled: " + event.OrderID,
			body:    fmt.Sprintf("Your order %s has been cancelled.", event.OrderID),
		}, true
	}
	return message{}, false
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status change event: %w", err)
	}

	h.logger.Info("processing status change event", "order_id", event.OrderID, "status", event.Status)

	msg, ok := composeMessage(event)
	if !ok {
		h.logger.Info("no notification for status", "order_id", event.OrderID, "status", event.Status)
		return nil
	}

	if err := h.sendEmail(ctx, event.BuyerID, msg); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send email: %w", err)
	}

	if event.BuyerPhone != "" {
		if err := h.sendSMS(ctx, event.BuyerPhone, msg); err != nil {
			h.logger.Error("failed to send sms", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("send sms: %w", err)
		}
	}

	h.logger.Info("notifications dispatched", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, buyerID string, msg message) error {
	body := map[string]string{
		"to":      buyerID,
		"subject": msg.subject,
		"body":    msg.body,
	}
	return h.post(ctx, "/email/send", body)
}

func (h *NotificationHandler) sendSMS(ctx context.Context, phone string, msg message) error {
	body := map[string]string{
		"to":      phone,
		"message": msg.body,
	}
	return h.post(ctx, "/sms/send", body)
}

func (h *NotificationHandler) post(ctx context.Context, path string, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.notifierURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}

	return nil
}
