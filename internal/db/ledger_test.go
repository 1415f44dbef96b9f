package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	model "github.com/loyaltyworks/ledger/internal/models"
)

func TestDbErrTranslatesTransientFailures(t *testing.T) {
	transient := []string{
		"08006", // connection failure
		"08003", // connection does not exist
		"40001", // serialization failure
		"40P01", // deadlock detected
		"57P01", // admin shutdown
	}
	for _, code := range transient {
		err := dbErr(&pgconn.PgError{Code: code})
		require.ErrorIs(t, err, model.ErrStoreUnavailable, code)
	}
}

func TestDbErrKeepsSemanticErrors(t *testing.T) {
	// нарушение уникальности разбирает каллер, не транслируем
	unique := &pgconn.PgError{Code: "23505"}
	require.NotErrorIs(t, dbErr(unique), model.ErrStoreUnavailable)
	require.True(t, isUniqueViolation(unique))

	check := dbErr(&pgconn.PgError{Code: "23514"})
	require.NotErrorIs(t, check, model.ErrStoreUnavailable)

	plain := fmt.Errorf("wrapped: %w", errors.New("boom"))
	require.Equal(t, plain, dbErr(plain))
	require.NoError(t, dbErr(nil))
}
