package postgres_test

import (
	"testing"

	"github.com/phrazzld/goalq/internal/platform/postgres"
	"github.com/phrazzld/goalq/internal/platform/sqlstore"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/phrazzld/goalq/internal/store/storetest"
	"github.com/phrazzld/goalq/internal/testdb"
)

// TestTaskStoreContract runs against a real database when GOALQ_TEST_DATABASE_URL is set.
func TestTaskStoreContract(t *testing.T) {
	db := testdb.Open(t)

	storetest.Run(t, func(t *testing.T) store.TaskStore {
		testdb.Truncate(t, db)
		return sqlstore.New(db, postgres.Dialect())
	})
}
