package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardType distinguishes the physical card from the virtual one.
type CardType string

const (
	CardSolid   CardType = "solid"
	CardVirtual CardType = "virtual"
)

// Card is a row in the cards table.
type Card struct {
	ID            string          `json:"id,omitempty"`
	UserID        string          `json:"user_id"`
	CardNumber    string          `json:"card_number"`
	CardType      CardType        `json:"card_type"`
	IsFrozen      bool            `json:"is_frozen"`
	SpendingLimit decimal.Decimal `json:"spending_limit"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// Masked returns the card number with all but the last four digits hidden.
func (c Card) Masked() string {
	n := c.CardNumber
	if len(n) <= 4 {
		return n
	}
	return "**** **** **** " + n[len(n)-4:]
}

// CardUpdate carries the mutable card fields.
type CardUpdate struct {
	IsFrozen      *bool            `json:"is_frozen,omitempty"`
	SpendingLimit *decimal.Decimal `json:"spending_limit,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at,omitzero"`
}
