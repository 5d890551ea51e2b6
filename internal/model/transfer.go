package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferResult is what a completed instant transfer reports back. It is
// shown to the user and never persisted by the client.
type TransferResult struct {
	Success        bool
	Message        string
	Reference      string
	NewBalance     decimal.Decimal
	ProcessingTime time.Duration
}

// UserMatch is a candidate recipient returned by the user search procedure.
type UserMatch struct {
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	AccountNumber string `json:"account_number"`
}

// Label returns the best human-readable name for the match.
func (m UserMatch) Label() string {
	if m.FullName != "" {
		return m.FullName
	}
	if m.Email != "" {
		return m.Email
	}
	return m.AccountNumber
}

// TransferDirection tells whether a history row was sent or received.
type TransferDirection string

const (
	DirectionSent     TransferDirection = "sent"
	DirectionReceived TransferDirection = "received"
)

// TransferRecord is one row of the instant transfer history.
type TransferRecord struct {
	Reference        string            `json:"reference_number"`
	Direction        TransferDirection `json:"direction"`
	Counterparty     string            `json:"counterparty_email"`
	CounterpartyName string            `json:"counterparty_name"`
	Amount           decimal.Decimal   `json:"amount"`
	Description      string            `json:"description"`
	Status           TransactionStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TransferStats summarizes a user's instant transfer usage against limits.
type TransferStats struct {
	DailyCount       int             `json:"daily_count"`
	DailyTotal       decimal.Decimal `json:"daily_total"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyCount     int             `json:"monthly_count"`
	MonthlyTotal     decimal.Decimal `json:"monthly_total"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
}

// LimitCheck is the server's verdict on whether an amount fits the limits.
type LimitCheck struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
}

// TransferLimits is a per-user override row in transfer_limits.
type TransferLimits struct {
	UserID           string          `json:"user_id"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	PerTransferLimit decimal.Decimal `json:"per_transfer_limit"`
}

// IdentifiedBalance is a balance looked up by email or account number.
type IdentifiedBalance struct {
	Email string          `json:"user_email"`
	DZD   decimal.Decimal `json:"dzd"`
	EUR   decimal.Decimal `json:"eur"`
	USD   decimal.Decimal `json:"usd"`
	GBP   decimal.Decimal `json:"gbp"`
}
