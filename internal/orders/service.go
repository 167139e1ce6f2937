package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kudzaim/zimcart/internal/domain"
)

var transitionsTotal metric.Int64Counter

func init() {
	var err error
	transitionsTotal, err = otel.Meter("orders").Int64Counter(
		"orders.status.transitions",
		metric.WithDescription("Committed order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// Store is the persistence boundary for orders. Status updates are
// compare-and-set: they only apply when the row still holds the expected
// pre-transition status, so two near-simultaneous transitions cannot both
// win.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, id string, from domain.OrderStatus, at time.Time, commission domain.Commission) (bool, error)
	SetPaymentProof(ctx context.Context, id, fileRef string) (bool, error)
	GetCommission(ctx context.Context, orderID string) (*domain.Commission, error)
}

// EventPublisher emits status-change events after a transition commits.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	store          Store
	publisher      EventPublisher
	commissionRate decimal.Decimal
	logger         *slog.Logger
}

func NewService(store Store, publisher EventPublisher, commissionRate decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{
		store:          store,
		publisher:      publisher,
		commissionRate: commissionRate,
		logger:         logger,
	}
}

type NewOrderInput struct {
	BuyerID       string
	Items         []domain.OrderItem
	Shipping      domain.ShippingAddress
	PaymentMethod domain.PaymentMethod
}

func (s *Service) CreateOrder(ctx context.Context, input NewOrderInput) (*domain.Order, error) {
	order := &domain.Order{
		BuyerID:       input.BuyerID,
		Items:         input.Items,
		Shipping:      input.Shipping,
		PaymentMethod: input.PaymentMethod,
		Status:        domain.OrderStatusPending,
		Total:         domain.ItemsTotal(input.Items),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, sellerID string) ([]domain.Order, error) {
	if sellerID != "" {
		return s.store.ListBySeller(ctx, sellerID)
	}
	return s.store.List(ctx)
}

// Transition moves an order to target if the edge is legal. The status write
// is the source of truth; the event publish happens after commit and its
// failure is logged, never propagated. A repeated paid transition is an
// idempotent no-op so duplicate gateway callbacks cannot double-count
// commission or re-trigger notifications.
func (s *Service) Transition(ctx context.Context, id string, target domain.OrderStatus) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if order.Status == domain.OrderStatusPaid && target == domain.OrderStatusPaid {
		return order, nil
	}

	if !domain.CanTransition(order.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, target)
	}

	now := time.Now().UTC()
	var applied bool

	if target == domain.OrderStatusPaid {
		fee, payout := domain.ComputeCommission(order.Total, s.commissionRate)
		commission := domain.Commission{
			OrderID:      order.ID,
			Rate:         s.commissionRate,
			PlatformFee:  fee,
			SellerPayout: payout,
			CreatedAt:    now,
		}
		applied, err = s.store.MarkPaid(ctx, id, order.Status, now, commission)
	} else {
		applied, err = s.store.UpdateStatus(ctx, id, order.Status, target, now)
	}
	if err != nil {
		return nil, fmt.Errorf("transition %s -> %s: %w", order.Status, target, err)
	}

	if !applied {
		// Lost a race against a concurrent transition. If the other writer
		// reached the same target this is a no-op success, otherwise the
		// precondition no longer holds.
		fresh, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, domain.ErrOrderNotFound
		}
		if fresh.Status == target {
			return fresh, nil
		}
		return nil, fmt.Errorf("%w: concurrent update, order is %s", domain.ErrInvalidTransition, fresh.Status)
	}

	if transitionsTotal != nil {
		transitionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("order.status", string(target)),
		))
	}

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(ctx, order.Status, updated)

	return updated, nil
}

// VerifyManualPayment confirms payment received outside the gateway
// (EcoCash or bank transfer) after an admin reviewed the uploaded proof.
// The proof reference must be present; the order must still be pending.
func (s *Service) VerifyManualPayment(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if !order.PaymentMethod.RequiresManualVerification() {
		return nil, domain.ErrManualVerifyNotAllowed
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is %s, not pending", domain.ErrInvalidTransition, order.Status)
	}
	if order.PaymentProof == "" {
		return nil, domain.ErrMissingPaymentProof
	}

	return s.Transition(ctx, id, domain.OrderStatusPaid)
}

func (s *Service) AttachPaymentProof(ctx context.Context, id, fileRef string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, order.Status)
	}

	if _, err := s.store.SetPaymentProof(ctx, id, fileRef); err != nil {
		return nil, fmt.Errorf("set payment proof: %w", err)
	}

	return s.store.GetByID(ctx, id)
}

func (s *Service) GetCommission(ctx context.Context, orderID string) (*domain.Commission, error) {
	return s.store.GetCommission(ctx, orderID)
}

func (s *Service) publishStatusChange(ctx context.Context, previous domain.OrderStatus, order *domain.Order) {
	if s.publisher == nil || order == nil {
		return
	}

	event := domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		BuyerPhone:     order.Shipping.Phone,
		PreviousStatus: previous,
		Status:         order.Status,
		Total:          order.Total,
		Timestamp:      time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish status change event", "error", err, "order_id", order.ID, "status", order.Status)
	}
}
