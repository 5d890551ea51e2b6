package devserver

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPostgres connects to WALLET_TEST_POSTGRES_DSN and skips when it is
// not set. Tests write to tables of their own and delete them afterwards.
func openTestPostgres(t *testing.T) *PGStore {
	t.Helper()
	dsn := os.Getenv("WALLET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WALLET_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPGStore(t *testing.T) {
	s := openTestPostgres(t)
	runStoreContract(t, s, func(table string) {
		_, err := s.db.ExecContext(context.Background(), `DELETE FROM wallet_rows WHERE tbl = $1`, table)
		assert.NoError(t, err)
	})
}

func TestPGStore_MigrationIsRepeatable(t *testing.T) {
	first := openTestPostgres(t)
	second, err := OpenPostgres(context.Background(), os.Getenv("WALLET_TEST_POSTGRES_DSN"), nil)
	require.NoError(t, err)
	defer second.Close()

	var cols int
	err = first.db.QueryRowContext(context.Background(),
		`SELECT count(*) FROM information_schema.columns WHERE table_name = 'wallet_rows' AND column_name IN ('tbl', 'id', 'data', 'seq')`).Scan(&cols)
	require.NoError(t, err)
	assert.Equal(t, 4, cols)
}

// The seeded user stays in the database; reruns find it by email.
func TestPGStore_SeedIsIdempotent(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	users, err := Seed(ctx, s, []SeedUser{{Email: "pg-" + t.Name() + "@example.dz"}})
	require.NoError(t, err)
	require.Len(t, users, 1)

	again, err := Seed(ctx, s, []SeedUser{{Email: users[0].Email}})
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, again[0].ID, "seeding an existing email is a no-op")

	require.NoError(t, s.Read(ctx, func(tb Tables) error {
		rows, err := tb.Select(TableBalances, Where("user_id", OpEq, users[0].ID))
		require.Len(t, rows, 1)
		assert.Equal(t, "15000", num(rows[0], "dzd").String())
		return err
	}))
}
