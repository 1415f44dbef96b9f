package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы счета
const (
	ACTIVE   = 0
	INACTIVE = 1
)

// Типы операций
const (
	EARN   = 0
	REDEEM = 1
)

// Статусы приглашения
const (
	PENDING  = 0
	ACCEPTED = 1
	REJECTED = 2
)

// Роли
const (
	RoleCustomer = "customer"
	RoleBusiness = "business"
)

// Ключ счета: клиент + бизнес + программа
type AccountRef struct {
	Customer string `json:"customerId"`
	Business string `json:"businessId"`
	Program  string `json:"programId"`
}

// Счет баллов (карта лояльности)
type Account struct {
	UUID          uuid.UUID
	Customer      string // ID клиента
	Business      string // ID бизнеса
	Program       string // ID программы
	Status        int
	Balance       int64 // текущий баланс
	TotalEarned   int64 // всего начислено
	TotalRedeemed int64 // всего списано
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Транзакция - неизменяемая запись леджера
type PointTransaction struct {
	UUID        uuid.UUID
	Account     uuid.UUID // UUID счета
	Direction   int       // тип операции
	Points      int64     // кол-во баллов, всегда > 0
	Description string
	SourceRef   string // ключ идемпотентности, уникален в рамках счета
	Actor       string // кто выполнил операцию
	CreatedAt   time.Time
}

// Приглашение в программу
type Invitation struct {
	UUID       uuid.UUID
	Customer   string
	Business   string
	Program    string
	State      int
	CreatedAt  time.Time
	ResolvedAt time.Time // нулевое время, пока PENDING
}

// Запись активности - человекочитаемый след для UI и уведомлений
type Activity struct {
	UUID      uuid.UUID
	Account   uuid.UUID
	Kind      string
	Message   string
	Actor     string
	CreatedAt time.Time
}

// Баланс счета
type Balance struct {
	Points        int64 `json:"points"`
	TotalEarned   int64 `json:"totalEarned"`
	TotalRedeemed int64 `json:"totalRedeemed"`
}

// Результат начисления/списания
type MutationResult struct {
	Account    uuid.UUID
	NewBalance int64
	Balance    Balance   // полный баланс после записи, для сквозной записи в кэш
	Tnx        uuid.UUID
	Replayed   bool // повтор по ключу идемпотентности
}

// Аутентифицированный актор, роль проверяется внешним сервисом
type Actor struct {
	ID   string
	Role string
}

// Виды событий для сервиса уведомлений
const (
	EventPointsAwarded      = "points_awarded"
	EventPointsRedeemed     = "points_redeemed"
	EventInvitationCreated  = "invitation_created"
	EventEnrollmentAccepted = "enrollment_accepted"
	EventEnrollmentRejected = "enrollment_rejected"
)

// Событие воркфлоу/леджера
type Event struct {
	Kind       string    `json:"kind"`
	Customer   string    `json:"customerId"`
	Business   string    `json:"businessId"`
	Program    string    `json:"programId"`
	Account    uuid.UUID `json:"accountId,omitempty"`
	Invitation uuid.UUID `json:"invitationId,omitempty"`
	Points     int64     `json:"points,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ошибки
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrAccountUnavailable  = errors.New("account unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicatePending    = errors.New("pending invitation already exists")
	ErrAlreadyResolved     = errors.New("invitation already resolved")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
)
