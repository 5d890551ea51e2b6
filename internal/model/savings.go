package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentType is the payout period of an investment.
type InvestmentType string

const (
	InvestWeekly    InvestmentType = "weekly"
	InvestMonthly   InvestmentType = "monthly"
	InvestQuarterly InvestmentType = "quarterly"
	InvestYearly    InvestmentType = "yearly"
)

// InvestmentTypes lists every accepted investment type.
var InvestmentTypes = []InvestmentType{InvestWeekly, InvestMonthly, InvestQuarterly, InvestYearly}

// Valid reports whether t is one of InvestmentTypes.
func (t InvestmentType) Valid() bool {
	for _, known := range InvestmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Investment is a row in the investments table.
type Investment struct {
	ID         string          `json:"id,omitempty"`
	UserID     string          `json:"user_id"`
	Type       InvestmentType  `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	ProfitRate decimal.Decimal `json:"profit_rate"`
	Profit     decimal.Decimal `json:"profit"`
	Status     string          `json:"status"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	CreatedAt  time.Time       `json:"created_at,omitzero"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`
}

// InvestmentUpdate carries the mutable investment fields.
type InvestmentUpdate struct {
	Status    *string          `json:"status,omitempty"`
	Profit    *decimal.Decimal `json:"profit,omitempty"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
}

// SavingsGoal is a row in the savings_goals table.
type SavingsGoal struct {
	ID            string          `json:"id,omitempty"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      time.Time       `json:"deadline"`
	Category      string          `json:"category"`
	Icon          string          `json:"icon"`
	Color         string          `json:"color"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// Progress returns current/target as a fraction in [0, 1].
func (g SavingsGoal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	p := g.CurrentAmount.Div(g.TargetAmount)
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}

// SavingsGoalUpdate carries the mutable goal fields.
type SavingsGoalUpdate struct {
	Name          *string          `json:"name,omitempty"`
	CurrentAmount *decimal.Decimal `json:"current_amount,omitempty"`
	Status        *string          `json:"status,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at,omitzero"`
}
