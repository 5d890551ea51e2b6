// Package ledger exports and imports the transaction log as CSV and
// summarizes it.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/model"
)

// Header is the CSV header of an exported transaction log.
const Header = "id,created_at,type,amount,currency,description,status,reference,recipient"

const (
	numFields = 9
	colID     = 0
	colTime   = 1
	colType   = 2
	colAmount = 3
	colCurr   = 4
	colDesc   = 5
	colStatus = 6
	colRef    = 7
	colRecip  = 8
)

// ReadTransactions reads every transaction from an exported CSV.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading transactions CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}
	if strings.Join(records[0], ",") != Header {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(records[0], ","))
	}

	var txs []model.Transaction
	for i, rec := range records[1:] {
		tx, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// WriteTransactions writes txs with a header row.
func WriteTransactions(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, tx := range txs {
		if err := cw.Write(MarshalTransaction(tx)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(tx model.Transaction) []string {
	row := make([]string, numFields)
	row[colID] = tx.ID
	if !tx.CreatedAt.IsZero() {
		row[colTime] = tx.CreatedAt.UTC().Format(time.RFC3339)
	}
	row[colType] = string(tx.Type)
	row[colAmount] = tx.Amount.StringFixed(2)
	row[colCurr] = string(tx.Currency)
	row[colDesc] = tx.Description
	row[colStatus] = string(tx.Status)
	row[colRef] = tx.Reference
	row[colRecip] = tx.Recipient
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction. Type, currency
// and status must be known values; created_at may be empty.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	var created time.Time
	if s := record[colTime]; s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing created_at %q: %w", s, err)
		}
		created = t
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	typ := model.TransactionType(record[colType])
	if !typ.Valid() {
		return model.Transaction{}, fmt.Errorf("unknown type %q", record[colType])
	}
	cur, err := model.ParseCurrency(record[colCurr])
	if err != nil {
		return model.Transaction{}, err
	}
	status := model.TransactionStatus(record[colStatus])
	switch status {
	case model.StatusCompleted, model.StatusPending, model.StatusFailed:
	default:
		return model.Transaction{}, fmt.Errorf("unknown status %q", record[colStatus])
	}

	return model.Transaction{
		ID:          record[colID],
		Type:        typ,
		Amount:      amount,
		Currency:    cur,
		Description: record[colDesc],
		Status:      status,
		Reference:   record[colRef],
		Recipient:   record[colRecip],
		CreatedAt:   created,
	}, nil
}
