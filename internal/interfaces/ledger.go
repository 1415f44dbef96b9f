package ledger

import (
	"context"

	model "github.com/loyaltyworks/ledger/internal/models"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=./../services/mock_ledger_test.go -package=ledger . AccessGuard,EventPublisher,CacheStorage

type LedgerStorage interface {
	// Начисление: атомарно в рамках одной транзакции БД.
	// autoEnroll - создать счет, если его нет (бизнес начисляет напрямую)
	Award(ctx context.Context, ref model.AccountRef, points int64, sourceRef string, description string, actor string, autoEnroll bool) (model.MutationResult, error)
	// Списание: атомарная проверка баланса и списание
	Redeem(ctx context.Context, ref model.AccountRef, points int64, reason string, actor string) (model.MutationResult, error)
	GetBalance(ctx context.Context, ref model.AccountRef) (model.Balance, error)
	GetTnx(ctx context.Context, ref model.AccountRef, limit int, offset int) ([]model.PointTransaction, error)
	EnsureAccount(ctx context.Context, ref model.AccountRef) (uuid.UUID, error)
	Deactivate(ctx context.Context, ref model.AccountRef) error
	InviteCreate(ctx context.Context, ref model.AccountRef) (uuid.UUID, error)
	// Разрешение приглашения названным клиентом, ровно один раз
	InviteResolve(ctx context.Context, invitation uuid.UUID, customer string, accept bool) (account uuid.UUID, err error)
	GetInvitation(ctx context.Context, invitation uuid.UUID) (model.Invitation, error)
	GetActivities(ctx context.Context, ref model.AccountRef, limit int) ([]model.Activity, error)
}

type CacheStorage interface {
	GetBalance(ctx context.Context, ref model.AccountRef) (model.Balance, error)
	SetBalance(ctx context.Context, ref model.AccountRef, balance model.Balance) error
	InvalidateBalance(ctx context.Context, ref model.AccountRef) error
}

// Отправка событий для сервиса уведомлений: fire-and-forget,
// ошибка доставки не откатывает операцию леджера
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// Внешний сервис авторизации
type AccessGuard interface {
	CanAct(ctx context.Context, actor string, role string, customer string, business string) (bool, error)
}
