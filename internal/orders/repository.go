package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kudzaim/zimcart/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, status, payment_method, total,
			shipping_name, shipping_address, shipping_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, order.ID, order.BuyerID, order.Status, order.PaymentMethod, order.Total,
		order.Shipping.Name, order.Shipping.Address, order.Shipping.Phone, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, seller_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, item.ProductID, item.SellerID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}
	var proof sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, status, payment_method, payment_proof, total,
			shipping_name, shipping_address, shipping_phone,
			created_at, paid_at, shipped_at, delivered_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.BuyerID, &order.Status, &order.PaymentMethod,
		&proof, &order.Total,
		&order.Shipping.Name, &order.Shipping.Address, &order.Shipping.Phone,
		&order.CreatedAt, &order.PaidAt, &order.ShippedAt, &order.DeliveredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	order.PaymentProof = proof.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, seller_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.SellerID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, buyer_id, status, payment_method, payment_proof, total,
			shipping_name, shipping_address, shipping_phone,
			created_at, paid_at, shipped_at, delivered_at
		FROM orders
		ORDER BY created_at DESC
	`)
}

// ListBySeller returns orders containing at least one line item sold by the
// given seller. The order status stays a single field; sellers see the whole
// order even when it spans several sellers.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT DISTINCT o.id, o.buyer_id, o.status, o.payment_method, o.payment_proof, o.total,
			o.shipping_name, o.shipping_address, o.shipping_phone,
			o.created_at, o.paid_at, o.shipped_at, o.delivered_at
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE i.seller_id = $1
		ORDER BY o.created_at DESC
	`, sellerID)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var proof sql.NullString
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.Status, &order.PaymentMethod,
			&proof, &order.Total,
			&order.Shipping.Name, &order.Shipping.Address, &order.Shipping.Phone,
			&order.CreatedAt, &order.PaidAt, &order.ShippedAt, &order.DeliveredAt); err != nil {
			return nil, err
		}
		order.PaymentProof = proof.String
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, seller_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.SellerID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus applies a compare-and-set transition: the UPDATE only matches
// while the row still holds the expected pre-transition status. Returns false
// when a concurrent writer got there first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error) {
	timestampCol := ""
	switch to {
	case domain.OrderStatusShipped:
		timestampCol = ", shipped_at = $4"
	case domain.OrderStatusDelivered:
		timestampCol = ", delivered_at = $4"
	}

	query := `UPDATE orders SET status = $1, updated_at = $4` + timestampCol + `
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, to, id, from, at)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkPaid commits the paid transition and the commission record in a single
// transaction: either both land or neither does.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, from domain.OrderStatus, at time.Time, commission domain.Commission) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, paid_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`, domain.OrderStatusPaid, at, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commissions (order_id, rate, platform_fee, seller_payout, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, commission.Rate, commission.PlatformFee, commission.SellerPayout, at)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *OrderRepository) SetPaymentProof(ctx context.Context, id, fileRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_proof = $1, updated_at = NOW()
		WHERE id = $2
	`, fileRef, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) GetCommission(ctx context.Context, orderID string) (*domain.Commission, error) {
	commission := &domain.Commission{}

	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, rate, platform_fee, seller_payout, created_at
		FROM commissions
		WHERE order_id = $1
	`, orderID).Scan(&commission.OrderID, &commission.Rate, &commission.PlatformFee,
		&commission.SellerPayout, &commission.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return commission, nil
}
