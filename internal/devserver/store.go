// Package devserver is a development backend implementing the tables and
// remote procedures the wallet client consumes.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Table names served by the backend.
const (
	TableUsers            = "users"
	TableBalances         = "balances"
	TableTransactions     = "transactions"
	TableCards            = "cards"
	TableInvestments      = "investments"
	TableSavingsGoals     = "savings_goals"
	TableNotifications    = "notifications"
	TableReferrals        = "referrals"
	TableTransferLimits   = "transfer_limits"
	TableInstantTransfers = "instant_transfers"
)

var knownTables = map[string]bool{
	TableUsers:            true,
	TableBalances:         true,
	TableTransactions:     true,
	TableCards:            true,
	TableInvestments:      true,
	TableSavingsGoals:     true,
	TableNotifications:    true,
	TableReferrals:        true,
	TableTransferLimits:   true,
	TableInstantTransfers: true,
}

// ownerColumns names the column holding the owning user id, for tables
// where it is not user_id.
var ownerColumns = map[string]string{
	TableUsers:            "id",
	TableReferrals:        "referrer_id",
	TableInstantTransfers: "sender_id",
}

func ownerColumn(table string) string {
	if c, ok := ownerColumns[table]; ok {
		return c
	}
	return "user_id"
}

// ErrReadOnly is returned when a read transaction tries to write.
var ErrReadOnly = errors.New("store: write in read-only transaction")

// Row is one stored record. Values are JSON-compatible: string, bool, nil,
// json.Number, or nested maps and slices.
type Row map[string]any

// Tables is the view of the store inside one transaction.
type Tables interface {
	Select(table string, f Filter) ([]Row, error)
	Insert(table string, row Row) (Row, error)
	Update(table string, f Filter, patch Row) ([]Row, error)
}

// Store runs callbacks inside read or write transactions. A callback error
// rolls back every change it made.
type Store interface {
	Read(ctx context.Context, fn func(Tables) error) error
	Write(ctx context.Context, fn func(Tables) error) error
	Close() error
}

// clone returns a shallow copy of r.
func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// prepareInsert fills in the id and created_at columns when missing.
func prepareInsert(row Row, now time.Time) Row {
	out := row.clone()
	if s, _ := out["id"].(string); s == "" {
		out["id"] = uuid.NewString()
	}
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = timestamp(now)
	}
	return out
}

// applyPatch copies patch onto row and stamps updated_at.
func applyPatch(row, patch Row, now time.Time) Row {
	out := row.clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	out["updated_at"] = timestamp(now)
	return out
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// str returns the column as a string ("" when missing).
func str(r Row, key string) string {
	return stringify(r[key])
}

// num returns the column as a decimal (zero when missing or malformed).
func num(r Row, key string) decimal.Decimal {
	d, err := toDecimal(r[key])
	if err != nil {
		return decimal.Zero
	}
	return d
}

// number converts a decimal into the JSON-compatible value stored in rows.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return timestamp(x)
	default:
		return fmt.Sprint(x)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, errors.New("missing value")
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	default:
		return decimal.NewFromString(strings.TrimSpace(stringify(x)))
	}
}

// normalize converts decoded JSON values so rows hold only the documented
// value types.
func normalize(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		switch x := v.(type) {
		case decimal.Decimal:
			out[k] = number(x)
		case time.Time:
			out[k] = timestamp(x)
		case int:
			out[k] = json.Number(strconv.Itoa(x))
		case float64:
			out[k] = json.Number(strconv.FormatFloat(x, 'f', -1, 64))
		default:
			out[k] = v
		}
	}
	return out
}
