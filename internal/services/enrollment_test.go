package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	db "github.com/loyaltyworks/ledger/internal/db"
	model "github.com/loyaltyworks/ledger/internal/models"
)

func newEnrollmentService(t *testing.T) (*EnrollmentService, *LedgerService, *db.MemoryDB) {
	cont := gomock.NewController(t)

	guard := NewMockAccessGuard(cont)
	guard.EXPECT().CanAct(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	events := NewMockEventPublisher(cont)
	events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	storage := db.NewMemoryDB()
	enrollment := NewEnrollmentService(zap.NewNop(), storage, events, guard)
	ledger := NewLedgerService(zap.NewNop(), storage, nil, events, guard)
	return enrollment, ledger, storage
}

func TestInviteAccept(t *testing.T) {
	enrollment, ledger, _ := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, invitation)

	account, err := enrollment.Respond(ctx, customer, invitation, true)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, account)

	// счет создан с нулевым балансом
	balance, err := ledger.GetBalance(ctx, customer, ref)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.Points)

	// повторный акцепт
	_, err = enrollment.Respond(ctx, customer, invitation, true)
	require.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestInviteReject(t *testing.T) {
	enrollment, ledger, storage := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)

	account, err := enrollment.Respond(ctx, customer, invitation, false)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, account)

	// счета нет
	_, err = ledger.GetBalance(ctx, customer, ref)
	require.ErrorIs(t, err, model.ErrNotFound)

	inv, err := storage.GetInvitation(ctx, invitation)
	require.NoError(t, err)
	require.Equal(t, model.REJECTED, inv.State)
	require.False(t, inv.ResolvedAt.IsZero())
}

func TestDuplicatePending(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	_, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)

	_, err = enrollment.Invite(ctx, business, ref)
	require.ErrorIs(t, err, model.ErrDuplicatePending)
}

func TestInviteAgainAfterResolve(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)
	_, err = enrollment.Respond(ctx, customer, invitation, false)
	require.NoError(t, err)

	// после разрешения можно приглашать снова
	_, err = enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)
}

func TestRespondWrongCustomer(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)

	stranger := model.Actor{ID: "cust-999", Role: model.RoleCustomer}
	_, err = enrollment.Respond(ctx, stranger, invitation, true)
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestRespondUnknownInvitation(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	_, err := enrollment.Respond(ctx, customer, uuid.New(), true)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentRespond(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)

	// из конкурентной пары accept/reject побеждает ровно один
	var succeeded int
	mu := &sync.Mutex{}
	wg := &sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		accept := i == 0
		wg.Add(1)
		go func(accept bool) {
			defer wg.Done()
			_, err := enrollment.Respond(ctx, customer, invitation, accept)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				require.ErrorIs(t, err, model.ErrAlreadyResolved)
			}
		}(accept)
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
}

func TestAutoEnrollOnFirstAward(t *testing.T) {
	_, ledger, storage := newEnrollmentService(t)
	ctx := context.Background()

	// счета нет, бизнес начисляет напрямую - счет создается в том же вызове
	res, err := ledger.Award(ctx, business, ref, 100, "order-1", "first order")
	require.NoError(t, err)
	require.Equal(t, int64(100), res.NewBalance)

	balance, err := storage.GetBalance(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Points)
}

func TestAutoEnrollResolvesPendingInvitation(t *testing.T) {
	enrollment, ledger, storage := newEnrollmentService(t)
	ctx := context.Background()

	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)

	// прямое начисление закрывает висящее приглашение
	_, err = ledger.Award(ctx, business, ref, 50, "", "direct award")
	require.NoError(t, err)

	inv, err := storage.GetInvitation(ctx, invitation)
	require.NoError(t, err)
	require.Equal(t, model.ACCEPTED, inv.State)

	// повторное разрешение невозможно
	_, err = enrollment.Respond(ctx, customer, invitation, false)
	require.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestDeactivateAndReactivate(t *testing.T) {
	enrollment, ledger, _ := newEnrollmentService(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, business, ref, 100, "", "bonus")
	require.NoError(t, err)

	err = enrollment.Deactivate(ctx, customer, ref)
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, customer, ref, 10, "reward")
	require.ErrorIs(t, err, model.ErrAccountUnavailable)

	// новое приглашение и акцепт реактивируют карту, баллы сохранены
	invitation, err := enrollment.Invite(ctx, business, ref)
	require.NoError(t, err)
	_, err = enrollment.Respond(ctx, customer, invitation, true)
	require.NoError(t, err)

	balance, err := ledger.GetBalance(ctx, customer, ref)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Points)
}

func TestEnsureAccountReusesExisting(t *testing.T) {
	enrollment, _, _ := newEnrollmentService(t)
	ctx := context.Background()

	first, err := enrollment.EnsureAccount(ctx, ref)
	require.NoError(t, err)
	second, err := enrollment.EnsureAccount(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
