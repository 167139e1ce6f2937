package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kudzaim/zimcart/internal/domain"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type createOrderRequest struct {
	BuyerID       string                 `json:"buyer_id"`
	Items         []domain.OrderItem     `json:"items"`
	Shipping      domain.ShippingAddress `json:"shipping"`
	PaymentMethod string                 `json:"payment_method"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.BuyerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing buyer id")
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "order must contain at least one item")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || !item.UnitPrice.IsPositive() {
			h.writeError(w, http.StatusBadRequest, "item quantity and unit price must be positive")
			return
		}
	}

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown payment method")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), NewOrderInput{
		BuyerID:       req.BuyerID,
		Items:         req.Items,
		Shipping:      req.Shipping,
		PaymentMethod: method,
	})
	if err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "buyer_id", order.BuyerID, "total", order.Total)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "failed to get order", "id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("seller_id")

	orders, err := h.service.ListOrders(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "seller_id", sellerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := h.service.Transition(r.Context(), id, target)
	if err != nil {
		h.respondError(w, err, "failed to update order status", "id", id, "target", target)
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleVerifyManualPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.VerifyManualPayment(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "failed to verify manual payment", "id", id)
		return
	}

	h.logger.Info("manual payment verified", "order_id", order.ID, "method", order.PaymentMethod)
	h.writeJSON(w, http.StatusOK, order)
}

type attachProofRequest struct {
	FileRef string `json:"file_ref"`
}

func (h *Handler) HandleAttachPaymentProof(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req attachProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileRef == "" {
		h.writeError(w, http.StatusBadRequest, "missing file_ref")
		return
	}

	order, err := h.service.AttachPaymentProof(r.Context(), id, req.FileRef)
	if err != nil {
		h.respondError(w, err, "failed to attach payment proof", "id", id)
		return
	}

	h.logger.Info("payment proof attached", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGetCommission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	commission, err := h.service.GetCommission(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get commission", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if commission == nil {
		h.writeError(w, http.StatusNotFound, "commission not found")
		return
	}

	h.writeJSON(w, http.StatusOK, commission)
}

// respondError maps the domain error taxonomy onto status codes: illegal
// transitions are conflicts, unknown orders 404, verification preconditions
// 422. Everything else is an opaque 500 after logging.
func (h *Handler) respondError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMissingPaymentProof),
		errors.Is(err, domain.ErrManualVerifyNotAllowed):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
