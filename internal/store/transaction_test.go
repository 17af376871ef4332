package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/phrazzld/goalq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openCounterDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/tx.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE counter (n INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO counter (n) VALUES (0)`)
	require.NoError(t, err)
	return db
}

func readCounter(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT n FROM counter`).Scan(&n))
	return n
}

func increment(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE counter SET n = n + 1`)
	return err
}

func TestRunInTransaction_Commit(t *testing.T) {
	db := openCounterDB(t)

	err := store.RunInTransaction(context.Background(), db, increment)
	require.NoError(t, err)
	assert.Equal(t, 1, readCounter(t, db))
}

func TestRunInTransaction_RollbackKeepsSentinel(t *testing.T) {
	db := openCounterDB(t)

	err := store.RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		if err := increment(ctx, tx); err != nil {
			return err
		}
		return store.ErrStateConflict
	})

	assert.ErrorIs(t, err, store.ErrStateConflict)
	assert.Equal(t, 0, readCounter(t, db))
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	db := openCounterDB(t)

	assert.Panics(t, func() {
		_ = store.RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			_ = increment(ctx, tx)
			panic("boom")
		})
	})
	assert.Equal(t, 0, readCounter(t, db))
}

func TestStoreErrorMatchesUnavailable(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := store.Unavailable("create", cause)

	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "create operation on task failed")
}

func TestSentinelHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, store.IsNotFoundError(store.ErrTaskNotFound))
	assert.True(t, store.IsDuplicateError(store.ErrTaskExists))
	assert.False(t, store.IsNotFoundError(store.ErrStateConflict))
}
