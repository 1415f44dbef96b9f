package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	model "github.com/loyaltyworks/ledger/internal/models"
)

type LedgerDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerDB(logger *zap.Logger) (db *LedgerDB, err error) {
	// config
	purl := os.Getenv("LEDGER_DB")
	if purl == "" {
		return nil, fmt.Errorf("env LEDGER_DB is not set")
	}
	port := os.Getenv("LEDGER_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PORT is not set")
	}
	user := os.Getenv("LEDGER_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env LEDGER_DB_USER is not set")
	}
	password := os.Getenv("LEDGER_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PASSWORD is not set")
	}
	database := os.Getenv("LEDGER_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env LEDGER_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	return &LedgerDB{pool, logger}, err
}

func (l *LedgerDB) Close() {
	l.pool.Close()
}

// нарушение уникальности
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ошибки соединения транслируем в StoreUnavailable - каллер может повторить
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}

// временные сбои посреди транзакции: обрыв соединения (класс 08),
// deadlock/serialization (40001, 40P01), остановка сервера (класс 57).
// Каллер получает StoreUnavailable и может повторить.
func dbErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57") ||
			code == "40001" || code == "40P01" {
			return storeErr(err)
		}
	}
	return err
}

func toUUID(pg pgtype.UUID) uuid.UUID {
	id, _ := uuid.FromBytes(pg.Bytes[:])
	return id
}

// Прочитать счет, lock - заблокировать строку до конца транзакции
func (l *LedgerDB) accountTx(ctx context.Context, tx pgx.Tx, ref model.AccountRef, lock bool) (acc model.Account, err error) {
	q := "SELECT id, status, balance, total_earned, total_redeemed FROM accounts WHERE customer_id = $1 AND business_id = $2 AND program_id = $3"
	if lock {
		q += " FOR UPDATE"
	}
	var pguuid pgtype.UUID
	row := tx.QueryRow(ctx, q, ref.Customer, ref.Business, ref.Program)
	err = row.Scan(&pguuid, &acc.Status, &acc.Balance, &acc.TotalEarned, &acc.TotalRedeemed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acc, fmt.Errorf("account %w", model.ErrNotFound)
		}
		return acc, dbErr(err)
	}
	acc.UUID = toUUID(pguuid)
	acc.Customer = ref.Customer
	acc.Business = ref.Business
	acc.Program = ref.Program
	return acc, nil
}

// Создать счет, проигравший гонку повторно использует строку победителя.
// reactivate - вернуть INACTIVE счет в ACTIVE (акцепт приглашения)
func (l *LedgerDB) ensureAccountTx(ctx context.Context, tx pgx.Tx, ref model.AccountRef, reactivate bool) (account uuid.UUID, err error) {
	sql, args, err := sq.Insert("accounts").
		Columns("id", "customer_id", "business_id", "program_id", "status", "balance", "total_earned", "total_redeemed").
		Values(uuid.New(), ref.Customer, ref.Business, ref.Program, model.ACTIVE, 0, 0, 0).
		Suffix("ON CONFLICT (customer_id, business_id, program_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return uuid.Nil, dbErr(err)
	}

	acc, err := l.accountTx(ctx, tx, ref, true)
	if err != nil {
		return uuid.Nil, err
	}
	if acc.Status == model.INACTIVE && reactivate {
		sql, args, err = sq.Update("accounts").
			Set("status", model.ACTIVE).
			Set("updated_at", time.Now()).
			Where(sq.Eq{"id": acc.UUID}).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return uuid.Nil, err
		}
		_, err = tx.Exec(ctx, sql, args...)
		if err != nil {
			return uuid.Nil, dbErr(err)
		}
	}
	return acc.UUID, nil
}

// Автозачисление закрывает висящее приглашение: прямое начисление бизнесом
// подразумевает то же согласие, которое запрашивало приглашение
func (l *LedgerDB) acceptPendingTx(ctx context.Context, tx pgx.Tx, ref model.AccountRef) error {
	sql, args, err := sq.Update("invitations").
		Set("state", model.ACCEPTED).
		Set("resolved_at", time.Now()).
		Where(sq.Eq{"customer_id": ref.Customer, "program_id": ref.Program, "state": model.PENDING}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return dbErr(err)
}

func (l *LedgerDB) activityTx(ctx context.Context, tx pgx.Tx, account uuid.UUID, kind string, message string, actor string) error {
	sql, args, err := sq.Insert("activities").
		Columns("id", "account", "kind", "message", "actor_id").
		Values(uuid.New(), account, kind, message, actor).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return dbErr(err)
}

// повтор по ключу идемпотентности: вернуть ранее записанный результат
func (l *LedgerDB) replayTx(ctx context.Context, tx pgx.Tx, account uuid.UUID, sourceRef string) (res model.MutationResult, found bool, err error) {
	var pguuid pgtype.UUID
	row := tx.QueryRow(ctx,
		"SELECT id, balance_after FROM transactions WHERE account = $1 AND source_reference = $2",
		account, sourceRef)
	err = row.Scan(&pguuid, &res.NewBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, false, nil
		}
		return res, false, dbErr(err)
	}
	res.Account = account
	res.Tnx = toUUID(pguuid)
	res.Replayed = true
	return res, true, nil
}

// Начисление баллов
func (l *LedgerDB) Award(ctx context.Context, ref model.AccountRef, points int64, sourceRef string, description string, actor string, autoEnroll bool) (res model.MutationResult, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return res, storeErr(err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// заблокировать счет, при необходимости создать
	acc, err := l.accountTx(ctx, tx, ref, true)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return res, err
		}
		if !autoEnroll {
			// начисление не создает счет - для каллера счет недоступен
			return res, fmt.Errorf("account: %w", model.ErrAccountUnavailable)
		}
		_, err = l.ensureAccountTx(ctx, tx, ref, false)
		if err != nil {
			return res, err
		}
		err = l.acceptPendingTx(ctx, tx, ref)
		if err != nil {
			return res, err
		}
		acc, err = l.accountTx(ctx, tx, ref, true)
		if err != nil {
			return res, err
		}
	}
	if acc.Status != model.ACTIVE {
		return res, fmt.Errorf("account %s: %w", acc.UUID, model.ErrAccountUnavailable)
	}

	// проверка идемпотентности под блокировкой строки счета
	if sourceRef != "" {
		res, found, rerr := l.replayTx(ctx, tx, acc.UUID, sourceRef)
		if rerr != nil {
			return res, rerr
		}
		if found {
			err = tx.Commit(ctx)
			return res, err
		}
	}

	newBalance := acc.Balance + points
	newEarned := acc.TotalEarned + points
	sql, args, err := sq.Update("accounts").
		Set("balance", newBalance).
		Set("total_earned", newEarned).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": acc.UUID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return res, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return res, dbErr(err)
	}

	tnx := uuid.New()
	var srcRef any
	if sourceRef != "" {
		srcRef = sourceRef
	}
	sql, args, err = sq.Insert("transactions").
		Columns("id", "account", "direction", "points", "balance_after", "description", "source_reference", "actor_id").
		Values(tnx, acc.UUID, model.EARN, points, newBalance, description, srcRef, actor).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return res, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			// конкурентная вставка с тем же ключом успела раньше
			tx.Rollback(ctx)
			return l.replayAward(ctx, ref, sourceRef)
		}
		return res, dbErr(err)
	}

	err = l.activityTx(ctx, tx, acc.UUID, model.EventPointsAwarded,
		fmt.Sprintf("awarded %d points: %s", points, description), actor)
	if err != nil {
		return res, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return res, storeErr(err)
	}
	return model.MutationResult{
		Account:    acc.UUID,
		NewBalance: newBalance,
		Balance:    model.Balance{Points: newBalance, TotalEarned: newEarned, TotalRedeemed: acc.TotalRedeemed},
		Tnx:        tnx,
	}, nil
}

// Перечитать результат начисления после проигранной гонки вставки
func (l *LedgerDB) replayAward(ctx context.Context, ref model.AccountRef, sourceRef string) (res model.MutationResult, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return res, storeErr(err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, storeErr(err)
	}
	defer tx.Rollback(ctx)

	acc, err := l.accountTx(ctx, tx, ref, false)
	if err != nil {
		return res, err
	}
	res, found, err := l.replayTx(ctx, tx, acc.UUID, sourceRef)
	if err != nil {
		return res, err
	}
	if !found {
		return res, fmt.Errorf("transaction %w", model.ErrNotFound)
	}
	return res, tx.Commit(ctx)
}

// Списание баллов
func (l *LedgerDB) Redeem(ctx context.Context, ref model.AccountRef, points int64, reason string, actor string) (res model.MutationResult, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return res, storeErr(err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// проверить и заблокировать баланс
	acc, err := l.accountTx(ctx, tx, ref, true)
	if err != nil {
		return res, err
	}
	if acc.Status != model.ACTIVE {
		return res, fmt.Errorf("account %s: %w", acc.UUID, model.ErrAccountUnavailable)
	}
	if acc.Balance < points {
		return res, fmt.Errorf("%w: balance %d, requested %d", model.ErrInsufficientBalance, acc.Balance, points)
	}

	newBalance := acc.Balance - points
	newRedeemed := acc.TotalRedeemed + points
	sql, args, err := sq.Update("accounts").
		Set("balance", newBalance).
		Set("total_redeemed", newRedeemed).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": acc.UUID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return res, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return res, dbErr(err)
	}

	tnx := uuid.New()
	sql, args, err = sq.Insert("transactions").
		Columns("id", "account", "direction", "points", "balance_after", "description", "actor_id").
		Values(tnx, acc.UUID, model.REDEEM, points, newBalance, reason, actor).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return res, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		return res, dbErr(err)
	}

	err = l.activityTx(ctx, tx, acc.UUID, model.EventPointsRedeemed,
		fmt.Sprintf("redeemed %d points: %s", points, reason), actor)
	if err != nil {
		return res, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return res, storeErr(err)
	}
	return model.MutationResult{
		Account:    acc.UUID,
		NewBalance: newBalance,
		Balance:    model.Balance{Points: newBalance, TotalEarned: acc.TotalEarned, TotalRedeemed: newRedeemed},
		Tnx:        tnx,
	}, nil
}

// Получить баланс
func (l *LedgerDB) GetBalance(ctx context.Context, ref model.AccountRef) (balance model.Balance, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return balance, storeErr(err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx,
		"SELECT balance, total_earned, total_redeemed FROM accounts WHERE customer_id = $1 AND business_id = $2 AND program_id = $3",
		ref.Customer, ref.Business, ref.Program)
	err = row.Scan(&balance.Points, &balance.TotalEarned, &balance.TotalRedeemed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance, fmt.Errorf("account %w", model.ErrNotFound)
		}
		return balance, dbErr(err)
	}
	return balance, nil
}

// Получить транзакции, новые первыми
func (l *LedgerDB) GetTnx(ctx context.Context, ref model.AccountRef, limit int, offset int) (tnxs []model.PointTransaction, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	defer conn.Release()

	var account pgtype.UUID
	row := conn.QueryRow(ctx,
		"SELECT id FROM accounts WHERE customer_id = $1 AND business_id = $2 AND program_id = $3",
		ref.Customer, ref.Business, ref.Program)
	err = row.Scan(&account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %w", model.ErrNotFound)
		}
		return nil, dbErr(err)
	}

	sql, args, err := sq.Select("id", "direction", "points", "description", "source_reference", "actor_id", "created_at").
		From("transactions").
		Where(sq.Eq{"account": toUUID(account)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var tnx model.PointTransaction
		var id pgtype.UUID
		var sourceRef pgtype.Text
		err = rows.Scan(&id, &tnx.Direction, &tnx.Points, &tnx.Description, &sourceRef, &tnx.Actor, &tnx.CreatedAt)
		if err != nil {
			return nil, dbErr(err)
		}
		tnx.UUID = toUUID(id)
		tnx.Account = toUUID(account)
		tnx.SourceRef = sourceRef.String
		tnxs = append(tnxs, tnx)
	}
	return tnxs, dbErr(rows.Err())
}

// Создать счет вне начисления (акцепт приглашения делает это сам)
func (l *LedgerDB) EnsureAccount(ctx context.Context, ref model.AccountRef) (account uuid.UUID, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	account, err = l.ensureAccountTx(ctx, tx, ref, false)
	if err != nil {
		return uuid.Nil, err
	}
	err = tx.Commit(ctx)
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	return account, nil
}

// Деактивация счета, физически не удаляем
func (l *LedgerDB) Deactivate(ctx context.Context, ref model.AccountRef) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer conn.Release()

	sql, args, err := sq.Update("accounts").
		Set("status", model.INACTIVE).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"customer_id": ref.Customer, "business_id": ref.Business, "program_id": ref.Program}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return dbErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %w", model.ErrNotFound)
	}
	return nil
}

// Создать приглашение, не более одного PENDING на клиента и программу
func (l *LedgerDB) InviteCreate(ctx context.Context, ref model.AccountRef) (invitation uuid.UUID, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	defer conn.Release()

	invitation = uuid.New()
	sql, args, err := sq.Insert("invitations").
		Columns("id", "customer_id", "business_id", "program_id", "state").
		Values(invitation, ref.Customer, ref.Business, ref.Program, model.PENDING).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	_, err = conn.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: customer %s, program %s", model.ErrDuplicatePending, ref.Customer, ref.Program)
		}
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return uuid.Nil, dbErr(err)
	}
	return invitation, nil
}

// Разрешение приглашения: переход PENDING -> ACCEPTED/REJECTED ровно один раз
func (l *LedgerDB) InviteResolve(ctx context.Context, invitation uuid.UUID, customer string, accept bool) (account uuid.UUID, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// заблокировать приглашение, конкурентные respond сериализуются здесь
	var inv model.Invitation
	var id pgtype.UUID
	row := tx.QueryRow(ctx,
		"SELECT id, customer_id, business_id, program_id, state FROM invitations WHERE id = $1 FOR UPDATE",
		invitation)
	err = row.Scan(&id, &inv.Customer, &inv.Business, &inv.Program, &inv.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("invitation %w", model.ErrNotFound)
		}
		return uuid.Nil, dbErr(err)
	}
	if inv.Customer != customer {
		return uuid.Nil, fmt.Errorf("invitation %s: %w", invitation, model.ErrForbidden)
	}
	if inv.State != model.PENDING {
		return uuid.Nil, fmt.Errorf("invitation %s: %w", invitation, model.ErrAlreadyResolved)
	}

	state := model.REJECTED
	if accept {
		state = model.ACCEPTED
	}
	sql, args, err := sq.Update("invitations").
		Set("state", state).
		Set("resolved_at", time.Now()).
		Where(sq.Eq{"id": invitation}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		return uuid.Nil, dbErr(err)
	}

	if accept {
		ref := model.AccountRef{Customer: inv.Customer, Business: inv.Business, Program: inv.Program}
		account, err = l.ensureAccountTx(ctx, tx, ref, true)
		if err != nil {
			return uuid.Nil, err
		}
		err = l.activityTx(ctx, tx, account, model.EventEnrollmentAccepted, "enrollment accepted", customer)
		if err != nil {
			return uuid.Nil, err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return uuid.Nil, storeErr(err)
	}
	return account, nil
}

// Получить приглашение
func (l *LedgerDB) GetInvitation(ctx context.Context, invitation uuid.UUID) (inv model.Invitation, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return inv, storeErr(err)
	}
	defer conn.Release()

	var id pgtype.UUID
	var resolved pgtype.Timestamptz
	row := conn.QueryRow(ctx,
		"SELECT id, customer_id, business_id, program_id, state, created_at, resolved_at FROM invitations WHERE id = $1",
		invitation)
	err = row.Scan(&id, &inv.Customer, &inv.Business, &inv.Program, &inv.State, &inv.CreatedAt, &resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inv, fmt.Errorf("invitation %w", model.ErrNotFound)
		}
		return inv, dbErr(err)
	}
	inv.UUID = toUUID(id)
	inv.ResolvedAt = resolved.Time
	return inv, nil
}

// Лента активности счета
func (l *LedgerDB) GetActivities(ctx context.Context, ref model.AccountRef, limit int) (acts []model.Activity, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	defer conn.Release()

	var account pgtype.UUID
	row := conn.QueryRow(ctx,
		"SELECT id FROM accounts WHERE customer_id = $1 AND business_id = $2 AND program_id = $3",
		ref.Customer, ref.Business, ref.Program)
	err = row.Scan(&account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %w", model.ErrNotFound)
		}
		return nil, dbErr(err)
	}

	sql, args, err := sq.Select("id", "kind", "message", "actor_id", "created_at").
		From("activities").
		Where(sq.Eq{"account": toUUID(account)}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var act model.Activity
		var id pgtype.UUID
		err = rows.Scan(&id, &act.Kind, &act.Message, &act.Actor, &act.CreatedAt)
		if err != nil {
			return nil, dbErr(err)
		}
		act.UUID = toUUID(id)
		act.Account = toUUID(account)
		acts = append(acts, act)
	}
	return acts, dbErr(rows.Err())
}
