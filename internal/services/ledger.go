package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	interf "github.com/loyaltyworks/ledger/internal/interfaces"
	model "github.com/loyaltyworks/ledger/internal/models"
)

type LedgerService struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	cache  interf.CacheStorage
	events interf.EventPublisher
	guard  interf.AccessGuard
}

func NewLedgerService(logger *zap.Logger, db interf.LedgerStorage, cache interf.CacheStorage, events interf.EventPublisher, guard interf.AccessGuard) *LedgerService {
	return &LedgerService{logger, db, cache, events, guard}
}

// проверка доступа перед любой мутацией
func (s *LedgerService) canAct(ctx context.Context, actor model.Actor, ref model.AccountRef) error {
	ok, err := s.guard.CanAct(ctx, actor.ID, actor.Role, ref.Customer, ref.Business)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("actor %s: %w", actor.ID, model.ErrForbidden)
	}
	return nil
}

// Сквозная запись зафиксированного баланса после мутации. Кэш пишут
// только мутации: чтение, записавшее значение после инвалидации,
// закрепило бы устаревший баланс на весь TTL.
func (s *LedgerService) cacheBalance(ctx context.Context, ref model.AccountRef, balance model.Balance) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetBalance(ctx, ref, balance); err != nil {
		s.logger.Error("set balance cache", zap.Error(err))
		// не дать старому значению пережить мутацию
		if err := s.cache.InvalidateBalance(ctx, ref); err != nil {
			s.logger.Error("invalidate balance", zap.Error(err))
		}
	}
}

// уведомления best-effort: ошибка доставки не влияет на результат операции
func (s *LedgerService) publish(ctx context.Context, event model.Event) {
	event.CreatedAt = time.Now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publish event",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

// Начисление баллов. sourceRef - ключ идемпотентности, повтор с тем же
// ключом возвращает ранее записанный результат без двойного начисления.
func (s *LedgerService) Award(ctx context.Context, actor model.Actor, ref model.AccountRef, points int64, sourceRef string, description string) (model.MutationResult, error) {
	// валидация до обращения к хранилищу
	if points <= 0 {
		return model.MutationResult{}, fmt.Errorf("%w: %d", model.ErrInvalidAmount, points)
	}
	if err := s.canAct(ctx, actor, ref); err != nil {
		return model.MutationResult{}, err
	}

	// автосоздание счета только когда бизнес начисляет напрямую
	autoEnroll := actor.Role == model.RoleBusiness
	res, err := s.db.Award(ctx, ref, points, sourceRef, description, actor.ID, autoEnroll)
	if err != nil {
		return res, err
	}

	if !res.Replayed {
		s.cacheBalance(ctx, ref, res.Balance)
		s.publish(ctx, model.Event{
			Kind:     model.EventPointsAwarded,
			Customer: ref.Customer,
			Business: ref.Business,
			Program:  ref.Program,
			Account:  res.Account,
			Points:   points,
		})
	}
	return res, nil
}

// Списание баллов, частичное списание не допускается
func (s *LedgerService) Redeem(ctx context.Context, actor model.Actor, ref model.AccountRef, points int64, reason string) (model.MutationResult, error) {
	if points <= 0 {
		return model.MutationResult{}, fmt.Errorf("%w: %d", model.ErrInvalidAmount, points)
	}
	if err := s.canAct(ctx, actor, ref); err != nil {
		return model.MutationResult{}, err
	}

	res, err := s.db.Redeem(ctx, ref, points, reason, actor.ID)
	if err != nil {
		return res, err
	}

	s.cacheBalance(ctx, ref, res.Balance)
	s.publish(ctx, model.Event{
		Kind:     model.EventPointsRedeemed,
		Customer: ref.Customer,
		Business: ref.Business,
		Program:  ref.Program,
		Account:  res.Account,
		Points:   points,
	})
	return res, nil
}

// Баланс
func (s *LedgerService) GetBalance(ctx context.Context, actor model.Actor, ref model.AccountRef) (balance model.Balance, err error) {
	if err = s.canAct(ctx, actor, ref); err != nil {
		return balance, err
	}

	// cache, при промахе читаем БД без записи в кэш
	if s.cache != nil {
		balance, err = s.cache.GetBalance(ctx, ref)
		if err == nil {
			return balance, nil
		}
	}
	balance, err = s.db.GetBalance(ctx, ref)
	if err != nil {
		return balance, err
	}
	return balance, nil
}

// История транзакций, новые первыми
func (s *LedgerService) GetHistory(ctx context.Context, actor model.Actor, ref model.AccountRef, limit int, offset int) ([]model.PointTransaction, error) {
	if err := s.canAct(ctx, actor, ref); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.GetTnx(ctx, ref, limit, offset)
}

// Лента активности
func (s *LedgerService) GetActivities(ctx context.Context, actor model.Actor, ref model.AccountRef, limit int) ([]model.Activity, error) {
	if err := s.canAct(ctx, actor, ref); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.db.GetActivities(ctx, ref, limit)
}

func (s *LedgerService) Log(err error) {
	s.logger.Error(err.Error())
}
