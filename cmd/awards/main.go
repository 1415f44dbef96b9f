// Job - начисление баллов по покупкам из Kafka
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	db "github.com/loyaltyworks/ledger/internal/db"
	guard "github.com/loyaltyworks/ledger/internal/external/guard"
	kafka "github.com/loyaltyworks/ledger/internal/external/kafka"
	rabbit "github.com/loyaltyworks/ledger/internal/external/rabbitmq"
	interf "github.com/loyaltyworks/ledger/internal/interfaces"
	model "github.com/loyaltyworks/ledger/internal/models"
	services "github.com/loyaltyworks/ledger/internal/services"
)

// Событие покупки. orderId - ключ идемпотентности: повторная доставка
// сообщения не приводит к двойному начислению.
type AwardMessage struct {
	OrderId    string `json:"orderId"`
	CustomerId string `json:"customerId"`
	BusinessId string `json:"businessId"`
	ProgramId  string `json:"programId"`
	Points     int64  `json:"points"`
}

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// kafka
	reader, err := kafka.GetNewReader("purchases")
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.CloseReader()

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
	serv := services.NewLedgerService(logger, storage, cache, events, access)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers int
	wenv := os.Getenv("LEDGER_AWARD_WORKERS")
	if wenv == "" {
		workers = 5
	} else {
		workers, err = strconv.Atoi(wenv)
		if err != nil || workers == 0 {
			workers = 5
		}
	}

	// os signals
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return worker(gctx, serv, logger, reader)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err.Error())
	}
}

func worker(ctx context.Context, serv *services.LedgerService, logger *zap.Logger, reader *kafka.KafkaAwards) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := reader.GetNewMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Error(err.Error())
				continue
			}
			award := &AwardMessage{}
			err = json.Unmarshal([]byte(msg), award)
			if err != nil {
				logger.Error("invalid award message", zap.Error(err))
				continue
			}
			if award.OrderId == "" || award.CustomerId == "" || award.BusinessId == "" || award.ProgramId == "" {
				logger.Error("invalid award message: required fields missing", zap.String("message", msg))
				continue
			}

			// бизнес начисляет напрямую - счет создается автоматически
			actor := model.Actor{ID: award.BusinessId, Role: model.RoleBusiness}
			ref := model.AccountRef{Customer: award.CustomerId, Business: award.BusinessId, Program: award.ProgramId}
			res, err := serv.Award(ctx, actor, ref, award.Points, award.OrderId, fmt.Sprintf("order %s", award.OrderId))
			if err != nil {
				logger.Error("award failed",
					zap.String("order", award.OrderId),
					zap.Error(err),
				)
				continue
			}
			if res.Replayed {
				logger.Info("award replayed", zap.String("order", award.OrderId))
			}
		}
	}
}
