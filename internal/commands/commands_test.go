package commands_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/ledger"
)

func TestBalance_ProvisionsAndPrints(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	out, err := c.run(t, "balance")
	require.NoError(t, err, out)
	assert.Regexp(t, `DZD\s+15000\.00`, out)
	assert.Regexp(t, `GBP\s+65\.50`, out)
}

func TestTransfer_EndToEnd(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)

	out, err := c.run(t, "transfer", "--to", "yacine@example.dz", "--amount", "2500", "--description", "rent", "--yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Send 2500.00 DZD to Yacine Benali <yacine@example.dz>")
	assert.Contains(t, out, "Reference:   TRF-")
	assert.Contains(t, out, "New balance: 12500.00 DZD")

	out, err = c.run(t, "history")
	require.NoError(t, err, out)
	assert.Contains(t, out, "sent")
	assert.Contains(t, out, "Yacine Benali")
	assert.Contains(t, out, "-2500.00 DZD")

	entries, err := activity.Read(c.home)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer", entries[0].Action)
	assert.Equal(t, "to yacine@example.dz", entries[0].Details)
}

func TestTransfer_PromptDeclined(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	c.stdin = "n\n"
	out, err := c.run(t, "transfer", "--to", "sara@example.dz", "--amount", "500")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Transfer cancelled")

	out, err = c.run(t, "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "15000.00")
}

func TestTransfer_ClientValidation(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)

	out, err := c.run(t, "transfer", "--to", "yacine@example.dz", "--amount", "50000", "--yes")
	require.Error(t, err)
	assert.Contains(t, out, "insufficient balance")

	out, err = c.run(t, "transfer", "--to", "yacine@example.dz", "--amount", "50", "--yes")
	require.Error(t, err)
	assert.Contains(t, out, "minimum transfer amount is 100 DZD")
}

func TestTransfer_ServerMessageVerbatim(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	out, err := c.run(t, "transfer", "--to", "nobody@example.dz", "--amount", "500", "--yes")
	require.Error(t, err)
	assert.Contains(t, out, "Recipient not found")
}

func TestSearch(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	out, err := c.run(t, "search", "sara")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Sara Mansouri")

	out, err = c.run(t, "search", "s")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No matching users")
}

func TestTransactions_ExportAndSummary(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	_, err := c.run(t, "recharge", "1000")
	require.NoError(t, err)

	path := filepath.Join(c.home, "tx.csv")
	out, err := c.run(t, "transactions", "--export", path)
	require.NoError(t, err, out)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	txs, err := ledger.ReadTransactions(f)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Wallet recharge", txs[0].Description)

	out, err = c.run(t, "transactions", "--summary")
	require.NoError(t, err, out)
	assert.Contains(t, out, "recharge")
	assert.Contains(t, out, "1000.00")

	out, err = c.run(t, "transactions", "import", path, "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 transactions would be imported (1 already present)")

	older := txs[0]
	older.CreatedAt = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	older.Description = "Recharge from last year"
	g, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ledger.WriteTransactions(g, append(txs, older)))
	require.NoError(t, g.Close())

	out, err = c.run(t, "transactions", "import", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 1 transactions (1 already present)")

	out, err = c.run(t, "transactions", "import", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 0 transactions (2 already present)")

	reexport := filepath.Join(c.home, "again.csv")
	out, err = c.run(t, "transactions", "--export", reexport)
	require.NoError(t, err, out)
	h, err := os.Open(reexport)
	require.NoError(t, err)
	defer h.Close()
	again, err := ledger.ReadTransactions(h)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, "Recharge from last year", again[1].Description, "newest first")
	assert.True(t, again[1].CreatedAt.Equal(older.CreatedAt), "created_at survives the import")
}

func TestCards_FreezeAndLimit(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	out, err := c.run(t, "cards")
	require.NoError(t, err, out)
	assert.Contains(t, out, "solid")
	assert.Contains(t, out, "virtual")

	out, err = c.run(t, "cards", "freeze", "virtual")
	require.NoError(t, err, out)
	assert.Contains(t, out, "frozen")

	out, err = c.run(t, "cards", "limit", "solid", "2500")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2500.00 DZD")
}

func TestGoalsAndInvest(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)

	out, err := c.run(t, "invest", "add", "3000", "--type", "quarterly", "--rate", "8")
	require.NoError(t, err, out)
	assert.Contains(t, out, "wallet 12000.00 DZD")

	out, err = c.run(t, "invest", "return", "5000")
	require.Error(t, err)
	assert.Contains(t, out, "Insufficient investment balance")

	out, err = c.run(t, "goals", "add", "Laptop", "--target", "50000", "--deadline", "2099-01-01")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created goal Laptop")

	out, err = c.run(t, "goals")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Laptop")
}

func TestProfileAndLimits(t *testing.T) {
	c := newCLI(t, backendEnv(t, "sara@example.dz")...)

	out, err := c.run(t, "profile", "--phone", "+213550001122")
	require.NoError(t, err, out)
	assert.Contains(t, out, "+213550001122")
	assert.Contains(t, out, "Sara Mansouri")

	out, err = c.run(t, "limits", "--amount", "600000")
	require.NoError(t, err, out)
	assert.Contains(t, out, "today")
	assert.Contains(t, out, "cannot be sent")
}

func TestLog(t *testing.T) {
	c := newCLI(t, backendEnv(t, "amina@example.dz")...)
	out, err := c.run(t, "log")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No activity recorded")

	_, err = c.run(t, "recharge", "200")
	require.NoError(t, err)
	out, err = c.run(t, "log")
	require.NoError(t, err, out)
	assert.Contains(t, out, "recharge")
	assert.Contains(t, out, "200.00 DZD")
}
