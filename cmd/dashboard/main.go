package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/order-dashboard/internal/circuitbreaker"
	"github.com/jogardn/order-dashboard/internal/config"
	"github.com/jogardn/order-dashboard/internal/events"
	"github.com/jogardn/order-dashboard/internal/orders"
	"github.com/jogardn/order-dashboard/internal/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Fatal("Invalid log level")
	}
	logger.SetLevel(level)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
		IsFailure:   orders.CountsAgainstBreaker,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from":            from.String(),
				"to":              to.String(),
			}).Warn("Orders API circuit breaker changed state")
		},
	}, logger)

	client := orders.NewClient(cfg.APIBaseURL, cfg.APITimeout, breakers, logger)
	logger.WithField("url", cfg.APIBaseURL).Info("Orders API client configured")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(client, logger)

	if cfg.KafkaEnabled() {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.AuditTopic, logger)
		if err != nil {
			logger.WithError(err).Warn("Audit producer unavailable - dashboard actions will not be published")
		} else {
			hub.SetAuditPublisher(producer)
			defer producer.Close()
		}

		consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.OrderEventsTopic, hub, logger)
		if err != nil {
			logger.WithError(err).Warn("Order events consumer unavailable - dashboards refresh on user action only")
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil {
					logger.WithError(err).Error("Order events consumer stopped")
				}
			}()
		}
	} else {
		logger.Info("Kafka brokers not configured - running without order events")
	}

	go hub.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(hub, breakers, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting dashboard server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}
