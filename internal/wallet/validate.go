package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/model"
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// ValidationErrors is the set of problems found in one input.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// UserMessage lists the problems without the field names.
func (v ValidationErrors) UserMessage() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Description
	}
	return strings.Join(msgs, ", ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

var (
	maxProfitRate = decimal.NewFromInt(100)

	defaultTransactionDescription = "Transaction"
)

// NewTransaction is the input for AddTransaction. Empty fields take defaults:
// type transfer, currency dzd, status completed.
type NewTransaction struct {
	Type        model.TransactionType
	Amount      decimal.Decimal
	Currency    string
	Description string
	Status      model.TransactionStatus
	Reference   string
	Recipient   string
	CreatedAt   time.Time // zero lets the server stamp the row
}

// normalizeTransaction applies defaults and validates t. The amount is
// stored as its absolute value.
func normalizeTransaction(userID string, t NewTransaction) (model.Transaction, error) {
	var errs ValidationErrors
	tx := model.Transaction{
		UserID:      userID,
		Type:        t.Type,
		Amount:      t.Amount.Abs(),
		Description: t.Description,
		Status:      t.Status,
		Reference:   t.Reference,
		Recipient:   t.Recipient,
		CreatedAt:   t.CreatedAt,
	}
	if tx.Type == "" {
		tx.Type = model.TxTransfer
	}
	if tx.Status == "" {
		tx.Status = model.StatusCompleted
	}
	if tx.Description == "" {
		tx.Description = defaultTransactionDescription
	}

	if !tx.Amount.IsPositive() {
		errs = append(errs, ValidationError{Field: "amount", Description: "transaction amount must be greater than zero"})
	}
	cur := t.Currency
	if cur == "" {
		cur = string(model.CurrencyDZD)
	}
	c, err := model.ParseCurrency(cur)
	if err != nil {
		errs = append(errs, ValidationError{Field: "currency", Description: "invalid currency"})
	}
	tx.Currency = c
	if !tx.Type.Valid() {
		errs = append(errs, ValidationError{Field: "type", Description: "invalid transaction type"})
	}
	return tx, errs.orNil()
}

// NewInvestment is the input for AddInvestment. Type defaults to monthly and
// status to active; the profit rate is clamped to [0, 100].
type NewInvestment struct {
	Type       model.InvestmentType
	Amount     decimal.Decimal
	ProfitRate decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
	Status     string
}

func normalizeInvestment(userID string, in NewInvestment) (model.Investment, error) {
	var errs ValidationErrors
	inv := model.Investment{
		UserID:     userID,
		Type:       in.Type,
		Amount:     in.Amount.Abs(),
		ProfitRate: clamp(in.ProfitRate, decimal.Zero, maxProfitRate),
		Profit:     decimal.Zero,
		Status:     in.Status,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
	}
	if inv.Type == "" {
		inv.Type = model.InvestMonthly
	}
	if inv.Status == "" {
		inv.Status = "active"
	}

	if !inv.Amount.IsPositive() {
		errs = append(errs, ValidationError{Field: "amount", Description: "investment amount must be greater than zero"})
	}
	if !inv.Type.Valid() {
		errs = append(errs, ValidationError{Field: "type", Description: "invalid investment type"})
	}
	if !inv.EndDate.After(inv.StartDate) {
		errs = append(errs, ValidationError{Field: "end_date", Description: "investment end date must be after the start date"})
	}
	return inv, errs.orNil()
}

// NewSavingsGoal is the input for AddSavingsGoal.
type NewSavingsGoal struct {
	Name          string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	Deadline      time.Time
	Category      string
	Icon          string
	Color         string
}

func normalizeSavingsGoal(userID string, g NewSavingsGoal, now time.Time) (model.SavingsGoal, error) {
	var errs ValidationErrors
	goal := model.SavingsGoal{
		UserID:        userID,
		Name:          orDefault(g.Name, "Savings goal"),
		TargetAmount:  g.TargetAmount.Abs(),
		CurrentAmount: decimal.Max(g.CurrentAmount, decimal.Zero),
		Deadline:      g.Deadline,
		Category:      orDefault(g.Category, "General"),
		Icon:          orDefault(g.Icon, "target"),
		Color:         orDefault(g.Color, "#3B82F6"),
		Status:        "active",
	}

	if !goal.TargetAmount.IsPositive() {
		errs = append(errs, ValidationError{Field: "target_amount", Description: "target amount must be greater than zero"})
	} else if goal.CurrentAmount.GreaterThan(goal.TargetAmount) {
		errs = append(errs, ValidationError{Field: "current_amount", Description: "current amount cannot exceed the target amount"})
	}
	if !goal.Deadline.After(now) {
		errs = append(errs, ValidationError{Field: "deadline", Description: "deadline must be in the future"})
	}
	return goal, errs.orNil()
}

// clampBalance returns u with negative amounts raised to zero.
func clampBalance(u model.BalanceUpdate) model.BalanceUpdate {
	fix := func(d *decimal.Decimal) *decimal.Decimal {
		if d == nil {
			return nil
		}
		return model.Dec(decimal.Max(*d, decimal.Zero))
	}
	return model.BalanceUpdate{
		DZD:               fix(u.DZD),
		EUR:               fix(u.EUR),
		USD:               fix(u.USD),
		GBP:               fix(u.GBP),
		InvestmentBalance: fix(u.InvestmentBalance),
	}
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(d, lo), hi)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// normalizeCode trims and uppercases a referral code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
