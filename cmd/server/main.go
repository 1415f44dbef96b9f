// HTTP API леджера: начисления, списания, приглашения, баланс и история
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	api "github.com/loyaltyworks/ledger/internal/api"
	db "github.com/loyaltyworks/ledger/internal/db"
	guard "github.com/loyaltyworks/ledger/internal/external/guard"
	rabbit "github.com/loyaltyworks/ledger/internal/external/rabbitmq"
	interf "github.com/loyaltyworks/ledger/internal/interfaces"
	services "github.com/loyaltyworks/ledger/internal/services"
	otel "github.com/loyaltyworks/ledger/observability/otel"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("LEDGER_PORT")
	if port == "" {
		panic("env LEDGER_PORT is not set")
	}

	// tracing
	shutdownTracer := otel.InitTracer(context.Background())
	defer shutdownTracer()

	// database
	var storage interf.LedgerStorage
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer dt.Close()
	storage = dt

	// cache
	var cache interf.CacheStorage
	cache, err = db.NewCacheService()
	if err != nil {
		logger.Error(err.Error())
		cache = nil
	}

	// notifications
	var events interf.EventPublisher
	publisher, err := rabbit.NewRabbitPublisher()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer publisher.Close()
	events = publisher

	// access guard
	var access interf.AccessGuard
	access, err = guard.NewGuardClient()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}

	// services
	ledger := services.NewLedgerService(logger, storage, cache, events, access)
	enrollment := services.NewEnrollmentService(logger, storage, events, access)

	// api handlers
	handler := api.NewHandler(ledger, enrollment, logger)
	mx := http.NewServeMux()
	mx.Handle("/metrics", promhttp.Handler())
	mx.Handle("/", otelhttp.NewHandler(handler, "ledger"))

	srv := &http.Server{
		Handler:      mx,
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
