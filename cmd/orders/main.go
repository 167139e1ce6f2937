package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/kudzaim/zimcart/internal/messaging"
	"github.com/kudzaim/zimcart/internal/orders"
	"github.com/kudzaim/zimcart/internal/sellers"
	"github.com/kudzaim/zimcart/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if _, err := db.Exec("SET search_path TO marketplace"); err != nil {
		logger.Error("failed to set search_path", "error", err)
		os.Exit(1)
	}

	commissionRate := decimal.NewFromFloat(0.10)
	if raw := os.Getenv("COMMISSION_RATE"); raw != "" {
		commissionRate, err = decimal.NewFromString(raw)
		if err != nil {
			logger.Error("invalid COMMISSION_RATE", "error", err, "value", raw)
			os.Exit(1)
		}
	}

	var publisher orders.EventPublisher
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), "order.status")
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, status change events will not be published")
	}

	orderRepo := orders.NewOrderRepository(db)
	orderService := orders.NewService(orderRepo, publisher, commissionRate, logger)
	orderHandler := orders.NewHandler(orderService, logger)

	documentRepo := sellers.NewDocumentRepository(db)
	documentHandler := sellers.NewHandler(documentRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /orders/{id}/verify-payment", telemetry.WithHTTPRoute(orderHandler.HandleVerifyManualPayment))
	mux.HandleFunc("PUT /orders/{id}/payment-proof", telemetry.WithHTTPRoute(orderHandler.HandleAttachPaymentProof))
	mux.HandleFunc("GET /orders/{id}/commission", telemetry.WithHTTPRoute(orderHandler.HandleGetCommission))
	mux.HandleFunc("POST /sellers/{sellerId}/documents", telemetry.WithHTTPRoute(documentHandler.HandleUpload))
	mux.HandleFunc("GET /sellers/{sellerId}/documents", telemetry.WithHTTPRoute(documentHandler.HandleList))
	mux.HandleFunc("PATCH /documents/{id}", telemetry.WithHTTPRoute(documentHandler.HandleReview))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orders",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
