package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kudzaim/zimcart/internal/payments"
	"github.com/kudzaim/zimcart/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	ordersServiceURL := os.Getenv("ORDERS_SERVICE_URL")
	if ordersServiceURL == "" {
		logger.Error("ORDERS_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	cfg := payments.ClientConfig{
		IntegrationID:  os.Getenv("PAYNOW_INTEGRATION_ID"),
		IntegrationKey: os.Getenv("PAYNOW_INTEGRATION_KEY"),
		InitiateURL:    os.Getenv("PAYNOW_INITIATE_URL"),
		ReturnURL:      os.Getenv("PAYNOW_RETURN_URL"),
		ResultURL:      os.Getenv("PAYNOW_RESULT_URL"),
		DevMode:        os.Getenv("PAYNOW_DEV_MODE") == "true",
	}
	if !cfg.DevMode && cfg.IntegrationKey == "" {
		logger.Error("PAYNOW_INTEGRATION_KEY is required outside dev mode")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	client := payments.NewClient(cfg, httpClient)
	handler := payments.NewHandler(client, ordersServiceURL, httpClient, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/initiate", telemetry.WithHTTPRoute(handler.HandleInitiate))
	mux.HandleFunc("POST /payments/callback", telemetry.WithHTTPRoute(handler.HandleCallback))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "payments",
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
		logger.Info("starting payments service", "port", port, "dev_mode", cfg.DevMode)
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
