// Job - обработка запросов на списание из RabbitMQ
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"

	db "github.com/loyaltyworks/ledger/internal/db"
	guard "github.com/loyaltyworks/ledger/internal/external/guard"
	rabbit "github.com/loyaltyworks/ledger/internal/external/rabbitmq"
	interf "github.com/loyaltyworks/ledger/internal/interfaces"
	model "github.com/loyaltyworks/ledger/internal/models"
	services "github.com/loyaltyworks/ledger/internal/services"
)

// Запрос на списание от сервиса вознаграждений
type RedeemMessage struct {
	RedeemId   string `json:"redeemId"`
	CustomerId string `json:"customerId"`
	BusinessId string `json:"businessId"`
	ProgramId  string `json:"programId"`
	Points     int64  `json:"points"`
	Reason     string `json:"reason"`
}

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.Close()

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

	// кол-во воркеров
	var semcount int
	semenv := os.Getenv("LEDGER_REDEEM_WORKERS")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil || semcount == 0 {
			semcount = 5
		}
	}

	// os signals
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(semcount)
	for i := 0; i < semcount; i++ {
		go worker(ctx, serv, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.LedgerService, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := <-reader.Msg
			if !ok {
				return
			}
			redeem := &RedeemMessage{}
			err := json.Unmarshal(msg.Body, redeem)
			if err != nil {
				logger.Error("invalid redeem message", zap.Error(err))
				continue
			}
			if redeem.RedeemId == "" {
				logger.Error("invalid redeem message: redeemId is required")
				continue
			}

			// списание от имени клиента, инициированное обменом на вознаграждение
			actor := model.Actor{ID: redeem.CustomerId, Role: model.RoleCustomer}
			ref := model.AccountRef{Customer: redeem.CustomerId, Business: redeem.BusinessId, Program: redeem.ProgramId}
			_, err = serv.Redeem(ctx, actor, ref, redeem.Points, redeem.Reason)
			if err != nil {
				logger.Error("redeem failed",
					zap.String("redeem", redeem.RedeemId),
					zap.Error(err),
				)
				_ = reader.Processed(ctx, redeem.RedeemId, false, err.Error())
				continue
			}
			err = reader.Processed(ctx, redeem.RedeemId, true, "")
			if err != nil {
				logger.Error(err.Error())
				continue
			}
		}
	}
}
