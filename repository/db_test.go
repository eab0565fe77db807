package repository_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-tenant-auth/repository"
)

func TestOpenDBSQLite(t *testing.T) {
	db, err := repository.OpenDB(context.Background(), repository.DBConfig{
		Driver: "SQLite",
		DSN:    "file::memory:?cache=private",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
}

func TestOpenDBUnsupportedDriver(t *testing.T) {
	_, err := repository.OpenDB(context.Background(), repository.DBConfig{Driver: "oracle"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, "UNSUPPORTED_DRIVER", richErr.TextCode)
}
