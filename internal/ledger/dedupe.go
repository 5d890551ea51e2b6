package ledger

import (
	"strings"
	"time"

	"github.com/dinarwallet/wallet/internal/model"
)

// Key identifies a transaction by its content: time (to the second, as
// exported), type, currency, amount, status, reference and description. Two
// rows with the same key are treated as the same transaction on import.
func Key(tx model.Transaction) string {
	var ts string
	if !tx.CreatedAt.IsZero() {
		ts = tx.CreatedAt.UTC().Truncate(time.Second).Format(time.RFC3339)
	}
	return strings.Join([]string{
		ts,
		string(tx.Type),
		string(tx.Currency),
		tx.Amount.Abs().String(),
		string(tx.Status),
		tx.Reference,
		tx.Description,
	}, "\x1f")
}

// Missing returns the rows of incoming whose Key is not in existing, and the
// number of rows skipped. Undated rows are never considered present, and
// duplicates inside incoming are kept once.
func Missing(existing, incoming []model.Transaction) ([]model.Transaction, int) {
	seen := make(map[string]bool, len(existing))
	for _, tx := range existing {
		seen[Key(tx)] = true
	}
	var out []model.Transaction
	skipped := 0
	for _, tx := range incoming {
		if tx.CreatedAt.IsZero() {
			out = append(out, tx)
			continue
		}
		k := Key(tx)
		if seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		out = append(out, tx)
	}
	return out, skipped
}
