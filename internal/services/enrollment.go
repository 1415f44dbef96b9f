package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	interf "github.com/loyaltyworks/ledger/internal/interfaces"
	model "github.com/loyaltyworks/ledger/internal/models"
)

// Воркфлоу вступления в программу: приглашение бизнеса и его разрешение
// клиентом, либо автосоздание счета при первом начислении
type EnrollmentService struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	events interf.EventPublisher
	guard  interf.AccessGuard
}

func NewEnrollmentService(logger *zap.Logger, db interf.LedgerStorage, events interf.EventPublisher, guard interf.AccessGuard) *EnrollmentService {
	return &EnrollmentService{logger, db, events, guard}
}

func (s *EnrollmentService) publish(ctx context.Context, event model.Event) {
	event.CreatedAt = time.Now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publish event",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

// Пригласить клиента в программу
func (s *EnrollmentService) Invite(ctx context.Context, actor model.Actor, ref model.AccountRef) (uuid.UUID, error) {
	ok, err := s.guard.CanAct(ctx, actor.ID, actor.Role, ref.Customer, ref.Business)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("actor %s: %w", actor.ID, model.ErrForbidden)
	}

	invitation, err := s.db.InviteCreate(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}

	s.publish(ctx, model.Event{
		Kind:       model.EventInvitationCreated,
		Customer:   ref.Customer,
		Business:   ref.Business,
		Program:    ref.Program,
		Invitation: invitation,
	})
	return invitation, nil
}

// Принять или отклонить приглашение. Повторный вызов по тому же
// приглашению возвращает AlreadyResolved без побочных эффектов.
func (s *EnrollmentService) Respond(ctx context.Context, actor model.Actor, invitation uuid.UUID, accept bool) (account uuid.UUID, err error) {
	ok, err := s.guard.CanAct(ctx, actor.ID, actor.Role, actor.ID, "")
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("actor %s: %w", actor.ID, model.ErrForbidden)
	}

	// принадлежность проверяет хранилище под блокировкой строки
	account, err = s.db.InviteResolve(ctx, invitation, actor.ID, accept)
	if err != nil {
		return uuid.Nil, err
	}

	inv, err := s.db.GetInvitation(ctx, invitation)
	if err != nil {
		s.logger.Error("read invitation", zap.Error(err))
		inv = model.Invitation{UUID: invitation}
	}
	kind := model.EventEnrollmentRejected
	if accept {
		kind = model.EventEnrollmentAccepted
	}
	s.publish(ctx, model.Event{
		Kind:       kind,
		Customer:   inv.Customer,
		Business:   inv.Business,
		Program:    inv.Program,
		Account:    account,
		Invitation: invitation,
	})
	return account, nil
}

// Вернуть активный счет, создав его при необходимости. Используется,
// когда бизнес начисляет напрямую - согласие уже подразумевается.
func (s *EnrollmentService) EnsureAccount(ctx context.Context, ref model.AccountRef) (uuid.UUID, error) {
	return s.db.EnsureAccount(ctx, ref)
}

// Деактивация карты, баллы и история сохраняются
func (s *EnrollmentService) Deactivate(ctx context.Context, actor model.Actor, ref model.AccountRef) error {
	ok, err := s.guard.CanAct(ctx, actor.ID, actor.Role, ref.Customer, ref.Business)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("actor %s: %w", actor.ID, model.ErrForbidden)
	}
	return s.db.Deactivate(ctx, ref)
}
