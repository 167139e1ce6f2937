package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kudzaim/zimcart/internal/domain"
)

// Handler exposes the gateway adapter over HTTP: initiate returns the buyer
// redirect, callback validates the webhook and forwards the settled status
// to the orders service.
type Handler struct {
	client     *Client
	ordersURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHandler(client *Client, ordersURL string, httpClient *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		client:     client,
		ordersURL:  ordersURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type initiateRequest struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.fetchOrder(r, req.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to fetch order", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusBadGateway, "orders service unavailable")
		return
	}

	if order.PaymentMethod != domain.PaymentMethodPaynow {
		h.writeError(w, http.StatusUnprocessableEntity, "order is not a gateway payment")
		return
	}
	if order.Status != domain.OrderStatusPending {
		h.writeError(w, http.StatusConflict, "order is not awaiting payment")
		return
	}

	result, err := h.client.Initiate(r.Context(), order.ID, order.Total)
	if err != nil {
		h.logger.Error("failed to initiate payment", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	h.logger.Info("payment initiated", "order_id", order.ID, "amount", order.Total)
	h.writeJSON(w, http.StatusOK, result)
}

// HandleCallback validates the gateway webhook. On a signature mismatch it
// makes no state change. A callback for an order already paid comes back from
// the orders service as a conflict and is treated as idempotent success, so
// duplicate deliveries are harmless.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	callback, err := h.client.VerifyCallback(r.PostForm)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidWebhookSignature) {
			h.logger.Error("webhook signature mismatch", "reference", r.PostForm.Get("reference"))
			h.writeError(w, http.StatusForbidden, "invalid signature")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	var target domain.OrderStatus
	switch {
	case callback.Paid():
		target = domain.OrderStatusPaid
	case callback.Cancelled():
		target = domain.OrderStatusCancelled
	default:
		h.logger.Info("callback acknowledged without action", "reference", callback.Reference, "status", callback.Status)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	if err := h.transitionOrder(r, callback.Reference, target); err != nil {
		h.logger.Error("failed to apply callback transition", "error", err, "reference", callback.Reference, "target", target)
		h.writeError(w, http.StatusBadGateway, "orders service unavailable")
		return
	}

	h.logger.Info("callback applied", "reference", callback.Reference, "status", target, "paynow_reference", callback.PaynowReference)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fetchOrder(r *http.Request, orderID string) (*domain.Order, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.ordersURL+"/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	var order domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (h *Handler) transitionOrder(r *http.Request, orderID string, target domain.OrderStatus) error {
	body, err := json.Marshal(map[string]string{"status": string(target)})
	if err != nil {
		return err
	}

	url := h.ordersURL + "/orders/" + orderID + "/status"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// 409 means the order already left the expected status, typically a
	// duplicate callback on an already-paid order. Idempotent success.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("orders service returned status %d", resp.StatusCode)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
