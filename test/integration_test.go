//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/kudzaim/zimcart/internal/domain"
	"github.com/kudzaim/zimcart/internal/messaging"
	"github.com/kudzaim/zimcart/internal/orders"
	"github.com/kudzaim/zimcart/internal/payments"
	"github.com/kudzaim/zimcart/internal/sellers"
)

const testCommissionRate = "0.10"

type ordersEnv struct {
	db      *sql.DB
	repo    *orders.OrderRepository
	service *orders.Service
	server  *httptest.Server
}

func setupOrders(t *testing.T, connStr string, publisher orders.EventPublisher) *ordersEnv {
	t.Helper()

	db, err := DBWithSchema(connStr, "marketplace")
	if err != nil {
		t.Fatalf("failed to open marketplace DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := orders.NewOrderRepository(db)
	service := orders.NewService(repo, publisher, decimal.RequireFromString(testCommissionRate), logger)
	handler := orders.NewHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", handler.HandleList)
	mux.HandleFunc("POST /orders", handler.HandleCreate)
	mux.HandleFunc("GET /orders/{id}", handler.HandleGet)
	mux.HandleFunc("PATCH /orders/{id}/status", handler.HandleUpdateStatus)
	mux.HandleFunc("POST /orders/{id}/verify-payment", handler.HandleVerifyManualPayment)
	mux.HandleFunc("PUT /orders/{id}/payment-proof", handler.HandleAttachPaymentProof)
	mux.HandleFunc("GET /orders/{id}/commission", handler.HandleGetCommission)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &ordersEnv{db: db, repo: repo, service: service, server: server}
}

func (e *ordersEnv) createOrder(t *testing.T, method, sellerID string) *domain.Order {
	t.Helper()

	body := `{
		"buyer_id": "buyer-1",
		"payment_method": "` + method + `",
		"shipping": {"name": "T Moyo", "address": "12 Samora Machel Ave, Harare", "phone": "+263771234567"},
		"items": [
			{"product_id": "prod-1", "seller_id": "` + sellerID + `", "quantity": 2, "unit_price": "25.50"}
		]
	}`

	resp, err := http.Post(e.server.URL+"/orders", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 201, got %d: %s", resp.StatusCode, raw)
	}

	var order domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if !order.Total.Equal(decimal.RequireFromString("51.00")) {
		t.Fatalf("expected total 51.00, got %s", order.Total)
	}
	return &order
}

func testPaynowClient() *payments.Client {
	return payments.NewClient(payments.ClientConfig{
		IntegrationID:  "1201",
		IntegrationKey: "integration-test-key",
		ReturnURL:      "https://shop.example/payments/return",
		ResultURL:      "https://shop.example/payments/callback",
		DevMode:        true,
	}, http.DefaultClient)
}

func postCallback(t *testing.T, handler *payments.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.HandleCallback(rec, req)
	return rec
}

func TestGatewayPaymentFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	env := setupOrders(t, pg.ConnStr, nil)
	order := env.createOrder(t, "paynow", "seller-1")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := testPaynowClient()
	paymentsHandler := payments.NewHandler(client, env.server.URL, http.DefaultClient, logger)

	form := url.Values{}
	form.Set("reference", order.ID)
	form.Set("paynowreference", "PN-0001")
	form.Set("amount", order.Total.StringFixed(2))
	form.Set("status", "Paid")
	form.Set("pollurl", "https://gateway.example/poll/1")
	form.Set("hash", client.SignCallback(form))

	rec := postCallback(t, paymentsHandler, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	paid, err := env.repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatal("expected paid_at to be set")
	}

	commission, err := env.repo.GetCommission(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch commission: %v", err)
	}
	if commission == nil {
		t.Fatal("expected commission record after payment")
	}
	if !commission.PlatformFee.Equal(decimal.RequireFromString("5.10")) {
		t.Fatalf("expected platform fee 5.10, got %s", commission.PlatformFee)
	}
	if !commission.PlatformFee.Add(commission.SellerPayout).Equal(paid.Total) {
		t.Fatalf("fee %s + payout %s does not equal total %s",
			commission.PlatformFee, commission.SellerPayout, paid.Total)
	}

	t.Run("duplicate callback is idempotent", func(t *testing.T) {
		rec := postCallback(t, paymentsHandler, form)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 for duplicate callback, got %d", rec.Code)
		}

		again, err := env.repo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if again.Status != domain.OrderStatusPaid {
			t.Fatalf("expected status still paid, got %s", again.Status)
		}
		if !again.PaidAt.Equal(*paid.PaidAt) {
			t.Fatalf("paid_at changed on duplicate callback: %s vs %s", again.PaidAt, paid.PaidAt)
		}
	})

	t.Run("tampered callback changes nothing", func(t *testing.T) {
		fresh := env.createOrder(t, "paynow", "seller-1")

		tampered := url.Values{}
		tampered.Set("reference", fresh.ID)
		tampered.Set("paynowreference", "PN-0002")
		tampered.Set("amount", fresh.Total.StringFixed(2))
		tampered.Set("status", "Paid")
		tampered.Set("pollurl", "https://gateway.example/poll/2")
		tampered.Set("hash", client.SignCallback(tampered))
		tampered.Set("amount", "1.00")

		rec := postCallback(t, paymentsHandler, tampered)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rec.Code)
		}

		unchanged, err := env.repo.GetByID(ctx, fresh.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if unchanged.Status != domain.OrderStatusPending {
			t.Fatalf("expected status still pending, got %s", unchanged.Status)
		}
	})
}

func TestManualPaymentVerificationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	env := setupOrders(t, pg.ConnStr, nil)
	order := env.createOrder(t, "ecocash", "seller-1")

	verifyURL := env.server.URL + "/orders/" + order.ID + "/verify-payment"

	resp, err := http.Post(verifyURL, "application/json", nil)
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 without proof, got %d", resp.StatusCode)
	}

	proofReq, err := http.NewRequest(http.MethodPut, env.server.URL+"/orders/"+order.ID+"/payment-proof",
		strings.NewReader(`{"file_ref": "proofs/ecocash-ref-778.jpg"}`))
	if err != nil {
		t.Fatalf("failed to build proof request: %v", err)
	}
	proofReq.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(proofReq)
	if err != nil {
		t.Fatalf("proof request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 attaching proof, got %d", resp.StatusCode)
	}

	resp, err = http.Post(verifyURL, "application/json", nil)
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 200 verifying payment, got %d: %s", resp.StatusCode, raw)
	}

	var verified domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if verified.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", verified.Status)
	}

	commission, err := env.repo.GetCommission(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch commission: %v", err)
	}
	if commission == nil {
		t.Fatal("expected commission record after manual verification")
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	env := setupOrders(t, pg.ConnStr, nil)
	order := env.createOrder(t, "cash_on_delivery", "seller-1")

	req, err := http.NewRequest(http.MethodPatch, env.server.URL+"/orders/"+order.ID+"/status",
		strings.NewReader(`{"status": "shipped"}`))
	if err != nil {
		t.Fatalf("failed to build status request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 for pending -> shipped, got %d", resp.StatusCode)
	}

	unchanged, err := env.repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if unchanged.Status != domain.OrderStatusPending {
		t.Fatalf("expected status still pending, got %s", unchanged.Status)
	}
}

func TestSellerScopedListing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	env := setupOrders(t, pg.ConnStr, nil)
	mine := env.createOrder(t, "paynow", "seller-a")
	env.createOrder(t, "paynow", "seller-b")

	resp, err := http.Get(env.server.URL + "/orders?seller_id=seller-a")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var list []domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode order list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 order for seller-a, got %d", len(list))
	}
	if list[0].ID != mine.ID {
		t.Fatalf("expected order %s, got %s", mine.ID, list[0].ID)
	}
}

func TestSellerDocumentReview(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := DBWithSchema(pg.ConnStr, "marketplace")
	if err != nil {
		t.Fatalf("failed to open marketplace DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := sellers.NewDocumentRepository(db)

	doc := &domain.SellerDocument{SellerID: "seller-9", FileRef: "docs/national-id.pdf"}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	if doc.Status != domain.DocumentStatusPending {
		t.Fatalf("expected status pending, got %s", doc.Status)
	}

	applied, err := repo.Review(ctx, doc.ID, domain.DocumentStatusApproved, "", "admin-1")
	if err != nil {
		t.Fatalf("failed to review document: %v", err)
	}
	if !applied {
		t.Fatal("expected review to apply")
	}

	applied, err = repo.Review(ctx, doc.ID, domain.DocumentStatusRejected, "blurry scan", "admin-2")
	if err != nil {
		t.Fatalf("second review failed: %v", err)
	}
	if applied {
		t.Fatal("expected second review to be rejected by the pending guard")
	}

	reviewed, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to fetch document: %v", err)
	}
	if reviewed.Status != domain.DocumentStatusApproved {
		t.Fatalf("expected status approved, got %s", reviewed.Status)
	}
	if reviewed.ReviewedBy != "admin-1" {
		t.Fatalf("expected reviewer admin-1, got %s", reviewed.ReviewedBy)
	}
}

func TestStatusEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, "order.status")
	defer func() { _ = producer.Close() }()

	sent := domain.OrderStatusChangedEvent{
		OrderID:        "order-evt-1",
		BuyerID:        "buyer-1",
		BuyerPhone:     "+263771234567",
		PreviousStatus: domain.OrderStatusPending,
		Status:         domain.OrderStatusPaid,
		Total:          decimal.RequireFromString("51.00"),
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := producer.Publish(ctx, sent.OrderID, sent); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, "order.status", "integration-test",
		messaging.WithStartOffset(kafkago.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	var received domain.OrderStatusChangedEvent
	err := consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
		if err := json.Unmarshal(payload, &received); err != nil {
			return err
		}
		stopConsume()
		return nil
	})
	if err != nil && consumeCtx.Err() == nil {
		t.Fatalf("consumer error: %v", err)
	}

	if received.OrderID != sent.OrderID {
		t.Fatalf("expected order %s, got %s", sent.OrderID, received.OrderID)
	}
	if received.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", received.Status)
	}
	if !received.Total.Equal(sent.Total) {
		t.Fatalf("expected total %s, got %s", sent.Total, received.Total)
	}
}
