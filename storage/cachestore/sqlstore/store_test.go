package sqlstore_test

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core/cache"
	"github.com/trezcool/swcache/storage/cachestore/sqlstore"
	"github.com/trezcool/swcache/storage/database"
	"github.com/trezcool/swcache/tests"
)

func prepareDB(t *testing.T) *sqlx.DB {
	conf := testutil.NewConfig(t)
	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, conf.Database.Engine))
	return db
}

func TestStore(t *testing.T) {
	testutil.RunStoreTests(t, func(t *testing.T) cache.Store {
		return sqlstore.New(prepareDB(t))
	})
}
