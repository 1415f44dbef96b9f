package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/loyaltyworks/ledger/internal/models"
)

// MemoryDB - хранилище в памяти с той же атомарной семантикой, что и Postgres.
// Используется в тестах и для локального запуска без БД.
type MemoryDB struct {
	mu          sync.Mutex
	accounts    map[model.AccountRef]*model.Account
	tnxs        map[uuid.UUID][]model.PointTransaction
	invitations map[uuid.UUID]*model.Invitation
	activities  map[uuid.UUID][]model.Activity
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts:    make(map[model.AccountRef]*model.Account),
		tnxs:        make(map[uuid.UUID][]model.PointTransaction),
		invitations: make(map[uuid.UUID]*model.Invitation),
		activities:  make(map[uuid.UUID][]model.Activity),
	}
}

func (m *MemoryDB) ensureLocked(ref model.AccountRef, reactivate bool) *model.Account {
	acc, ok := m.accounts[ref]
	if !ok {
		acc = &model.Account{
			UUID:      uuid.New(),
			Customer:  ref.Customer,
			Business:  ref.Business,
			Program:   ref.Program,
			Status:    model.ACTIVE,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		m.accounts[ref] = acc
	}
	if acc.Status == model.INACTIVE && reactivate {
		acc.Status = model.ACTIVE
		acc.UpdatedAt = time.Now()
	}
	return acc
}

func (m *MemoryDB) activityLocked(account uuid.UUID, kind string, message string, actor string) {
	m.activities[account] = append(m.activities[account], model.Activity{
		UUID:      uuid.New(),
		Account:   account,
		Kind:      kind,
		Message:   message,
		Actor:     actor,
		CreatedAt: time.Now(),
	})
}

func (m *MemoryDB) Award(ctx context.Context, ref model.AccountRef, points int64, sourceRef string, description string, actor string, autoEnroll bool) (res model.MutationResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		if !autoEnroll {
			// начисление не создает счет - для каллера счет недоступен
			return res, fmt.Errorf("account: %w", model.ErrAccountUnavailable)
		}
		acc = m.ensureLocked(ref, false)
		// закрыть висящее приглашение
		for _, inv := range m.invitations {
			if inv.Customer == ref.Customer && inv.Program == ref.Program && inv.State == model.PENDING {
				inv.State = model.ACCEPTED
				inv.ResolvedAt = time.Now()
			}
		}
	}
	if acc.Status != model.ACTIVE {
		return res, fmt.Errorf("account %s: %w", acc.UUID, model.ErrAccountUnavailable)
	}

	if sourceRef != "" {
		for _, tnx := range m.tnxs[acc.UUID] {
			if tnx.SourceRef == sourceRef {
				return model.MutationResult{Account: acc.UUID, NewBalance: m.balanceAfterLocked(acc.UUID, tnx.UUID), Tnx: tnx.UUID, Replayed: true}, nil
			}
		}
	}

	acc.Balance += points
	acc.TotalEarned += points
	acc.UpdatedAt = time.Now()
	tnx := model.PointTransaction{
		UUID:        uuid.New(),
		Account:     acc.UUID,
		Direction:   model.EARN,
		Points:      points,
		Description: description,
		SourceRef:   sourceRef,
		Actor:       actor,
		CreatedAt:   time.Now(),
	}
	m.tnxs[acc.UUID] = append(m.tnxs[acc.UUID], tnx)
	m.activityLocked(acc.UUID, model.EventPointsAwarded, fmt.Sprintf("awarded %d points: %s", points, description), actor)
	return model.MutationResult{
		Account:    acc.UUID,
		NewBalance: acc.Balance,
		Balance:    model.Balance{Points: acc.Balance, TotalEarned: acc.TotalEarned, TotalRedeemed: acc.TotalRedeemed},
		Tnx:        tnx.UUID,
	}, nil
}

// баланс на момент транзакции - для повтора по ключу идемпотентности
func (m *MemoryDB) balanceAfterLocked(account uuid.UUID, upto uuid.UUID) int64 {
	var balance int64
	for _, tnx := range m.tnxs[account] {
		if tnx.Direction == model.EARN {
			balance += tnx.Points
		} else {
			balance -= tnx.Points
		}
		if tnx.UUID == upto {
			break
		}
	}
	return balance
}

func (m *MemoryDB) Redeem(ctx context.Context, ref model.AccountRef, points int64, reason string, actor string) (res model.MutationResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return res, fmt.Errorf("account %w", model.ErrNotFound)
	}
	if acc.Status != model.ACTIVE {
		return res, fmt.Errorf("account %s: %w", acc.UUID, model.ErrAccountUnavailable)
	}
	if acc.Balance < points {
		return res, fmt.Errorf("%w: balance %d, requested %d", model.ErrInsufficientBalance, acc.Balance, points)
	}

	acc.Balance -= points
	acc.TotalRedeemed += points
	acc.UpdatedAt = time.Now()
	tnx := model.PointTransaction{
		UUID:        uuid.New(),
		Account:     acc.UUID,
		Direction:   model.REDEEM,
		Points:      points,
		Description: reason,
		Actor:       actor,
		CreatedAt:   time.Now(),
	}
	m.tnxs[acc.UUID] = append(m.tnxs[acc.UUID], tnx)
	m.activityLocked(acc.UUID, model.EventPointsRedeemed, fmt.Sprintf("redeemed %d points: %s", points, reason), actor)
	return model.MutationResult{
		Account:    acc.UUID,
		NewBalance: acc.Balance,
		Balance:    model.Balance{Points: acc.Balance, TotalEarned: acc.TotalEarned, TotalRedeemed: acc.TotalRedeemed},
		Tnx:        tnx.UUID,
	}, nil
}

func (m *MemoryDB) GetBalance(ctx context.Context, ref model.AccountRef) (balance model.Balance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return balance, fmt.Errorf("account %w", model.ErrNotFound)
	}
	return model.Balance{Points: acc.Balance, TotalEarned: acc.TotalEarned, TotalRedeemed: acc.TotalRedeemed}, nil
}

func (m *MemoryDB) GetTnx(ctx context.Context, ref model.AccountRef, limit int, offset int) (tnxs []model.PointTransaction, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return nil, fmt.Errorf("account %w", model.ErrNotFound)
	}
	all := make([]model.PointTransaction, len(m.tnxs[acc.UUID]))
	copy(all, m.tnxs[acc.UUID])
	// новые первыми
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryDB) EnsureAccount(ctx context.Context, ref model.AccountRef) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ref, false).UUID, nil
}

func (m *MemoryDB) Deactivate(ctx context.Context, ref model.AccountRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return fmt.Errorf("account %w", model.ErrNotFound)
	}
	acc.Status = model.INACTIVE
	acc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDB) InviteCreate(ctx context.Context, ref model.AccountRef) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inv := range m.invitations {
		if inv.Customer == ref.Customer && inv.Program == ref.Program && inv.State == model.PENDING {
			return uuid.Nil, fmt.Errorf("%w: customer %s, program %s", model.ErrDuplicatePending, ref.Customer, ref.Program)
		}
	}
	inv := &model.Invitation{
		UUID:      uuid.New(),
		Customer:  ref.Customer,
		Business:  ref.Business,
		Program:   ref.Program,
		State:     model.PENDING,
		CreatedAt: time.Now(),
	}
	m.invitations[inv.UUID] = inv
	return inv.UUID, nil
}

func (m *MemoryDB) InviteResolve(ctx context.Context, invitation uuid.UUID, customer string, accept bool) (account uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[invitation]
	if !ok {
		return uuid.Nil, fmt.Errorf("invitation %w", model.ErrNotFound)
	}
	if inv.Customer != customer {
		return uuid.Nil, fmt.Errorf("invitation %s: %w", invitation, model.ErrForbidden)
	}
	if inv.State != model.PENDING {
		return uuid.Nil, fmt.Errorf("invitation %s: %w", invitation, model.ErrAlreadyResolved)
	}

	inv.ResolvedAt = time.Now()
	if !accept {
		inv.State = model.REJECTED
		return uuid.Nil, nil
	}
	inv.State = model.ACCEPTED
	ref := model.AccountRef{Customer: inv.Customer, Business: inv.Business, Program: inv.Program}
	acc := m.ensureLocked(ref, true)
	m.activityLocked(acc.UUID, model.EventEnrollmentAccepted, "enrollment accepted", customer)
	return acc.UUID, nil
}

func (m *MemoryDB) GetInvitation(ctx context.Context, invitation uuid.UUID) (model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[invitation]
	if !ok {
		return model.Invitation{}, fmt.Errorf("invitation %w", model.ErrNotFound)
	}
	return *inv, nil
}

func (m *MemoryDB) GetActivities(ctx context.Context, ref model.AccountRef, limit int) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return nil, fmt.Errorf("account %w", model.ErrNotFound)
	}
	all := make([]model.Activity, len(m.activities[acc.UUID]))
	copy(all, m.activities[acc.UUID])
	// новые первыми, как в Postgres
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
