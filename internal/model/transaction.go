package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies entries in the transaction log.
type TransactionType string

const (
	TxRecharge   TransactionType = "recharge"
	TxTransfer   TransactionType = "transfer"
	TxBill       TransactionType = "bill"
	TxInvestment TransactionType = "investment"
	TxConversion TransactionType = "conversion"
	TxWithdrawal TransactionType = "withdrawal"
)

// TransactionTypes lists every accepted transaction type.
var TransactionTypes = []TransactionType{TxRecharge, TxTransfer, TxBill, TxInvestment, TxConversion, TxWithdrawal}

// Valid reports whether t is one of TransactionTypes.
func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is an immutable entry in a user's transaction log.
type Transaction struct {
	ID          string            `json:"id,omitempty"`
	UserID      string            `json:"user_id"`
	Type        TransactionType   `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    Currency          `json:"currency"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	Reference   string            `json:"reference,omitempty"`
	Recipient   string            `json:"recipient,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitzero"`
}

// String renders a one-line summary, e.g. "transfer 500.00 DZD (completed)".
func (t Transaction) String() string {
	return fmt.Sprintf("%s %s %s (%s)", t.Type, t.Amount.StringFixed(2), t.Currency.Code(), t.Status)
}

// Code returns the uppercase currency code ("DZD").
func (c Currency) Code() string {
	return strings.ToUpper(string(c))
}
