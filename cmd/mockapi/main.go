package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/events"
	"github.com/rxdesk/rxdesk/internal/mockapi"
	"github.com/rxdesk/rxdesk/internal/ws"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	store := mockapi.NewStore()
	if err := store.Seed(); err != nil {
		logger.WithError(err).Fatal("Failed to seed store")
	}

	// Orders live in memory unless a Postgres DSN is configured.
	var orders mockapi.OrderStore = mockapi.NewMemOrderStore()
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := mockapi.NewPGOrderStore(dsn, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		orders = pg
	}

	issuer := mockapi.NewTokenIssuer(
		getEnv("JWT_SECRET", "rxdesk-dev-secret"),
		15*time.Minute,
		24*time.Hour,
	)

	hub := ws.NewHub(logger)
	go hub.Run()

	server := mockapi.NewServer(store, orders, issuer, hub, logger)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		producer, err := events.NewKafkaProducer(brokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Kafka")
		}
		defer producer.Close()
		server.SetPublisher(producer)
	}

	router := server.Router()
	router.Use(loggingMiddleware(logger))

	port := getEnv("MOCKAPI_PORT", "8000")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", port).Info("Starting mock pharmacy backend")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down mock pharmacy backend...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
