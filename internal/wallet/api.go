// Package wallet wraps the remote tables and procedures behind typed calls
// and keeps a cached copy of the signed-in user's data.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/backend"
	"github.com/dinarwallet/wallet/internal/model"
)

// Remote tables.
const (
	tableUsers          = "users"
	tableBalances       = "balances"
	tableTransactions   = "transactions"
	tableCards          = "cards"
	tableInvestments    = "investments"
	tableSavingsGoals   = "savings_goals"
	tableNotifications  = "notifications"
	tableReferrals      = "referrals"
	tableTransferLimits = "transfer_limits"
)

// DefaultTransactionLimit is the number of transactions Load fetches.
const DefaultTransactionLimit = 50

// ErrNoResult is returned when a procedure answers with an empty result set.
var ErrNoResult = errors.New("no result returned from the backend")

// API is the typed surface of the remote backend.
type API struct {
	client *backend.Client
	now    func() time.Time
}

// NewAPI wraps client.
func NewAPI(client *backend.Client) *API {
	return &API{client: client, now: time.Now}
}

// first decodes an array-returning procedure and returns its first row.
func first[T any](ctx context.Context, c *backend.Client, fn string, params any) (T, error) {
	var rows []T
	var zero T
	if err := c.RPC(ctx, fn, params, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("calling rpc %s: %w", fn, ErrNoResult)
	}
	return rows[0], nil
}

// Profile returns the users row for userID.
func (a *API) Profile(ctx context.Context, userID string) (model.Profile, error) {
	var p model.Profile
	err := a.client.From(tableUsers).Select("*").Eq("id", userID).Single().Get(ctx, &p)
	return p, err
}

// UpdateProfile applies the non-nil fields of u.
func (a *API) UpdateProfile(ctx context.Context, userID string, u model.ProfileUpdate) (model.Profile, error) {
	var p model.Profile
	if u.IsEmpty() {
		return a.Profile(ctx, userID)
	}
	patch := struct {
		model.ProfileUpdate
		UpdatedAt time.Time `json:"updated_at"`
	}{u, a.now().UTC()}
	err := a.client.From(tableUsers).Eq("id", userID).Single().Update(ctx, patch, &p)
	return p, err
}

// Balance returns the user's balance row, or nil when none exists.
func (a *API) Balance(ctx context.Context, userID string) (*model.Balance, error) {
	var b model.Balance
	err := a.client.From(tableBalances).Select("*").Eq("user_id", userID).Single().Get(ctx, &b)
	if backend.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBalance inserts a balance row.
func (a *API) CreateBalance(ctx context.Context, b model.Balance) (model.Balance, error) {
	var out model.Balance
	err := a.client.From(tableBalances).Single().Insert(ctx, b, &out)
	return out, err
}

// UpdateBalance replaces the supplied balance fields. Negative amounts are
// sent as zero; nil fields keep their stored value.
func (a *API) UpdateBalance(ctx context.Context, userID string, u model.BalanceUpdate) (model.Balance, error) {
	u = clampBalance(u)
	return first[model.Balance](ctx, a.client, "update_user_balance", map[string]any{
		"p_user_id":            userID,
		"p_dzd":                u.DZD,
		"p_eur":                u.EUR,
		"p_usd":                u.USD,
		"p_gbp":                u.GBP,
		"p_investment_balance": u.InvestmentBalance,
	})
}

// InvestmentBalance returns the amount currently invested.
func (a *API) InvestmentBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var row struct {
		InvestmentBalance decimal.Decimal `json:"investment_balance"`
	}
	err := a.client.From(tableBalances).Select("investment_balance").Eq("user_id", userID).Single().Get(ctx, &row)
	return row.InvestmentBalance, err
}

// InvestmentOp is the direction of an investment balance change.
type InvestmentOp string

const (
	InvestAdd      InvestmentOp = "add"
	InvestSubtract InvestmentOp = "subtract"
)

// InvestmentResult is the outcome of moving money in or out of investments.
type InvestmentResult struct {
	DZD               decimal.Decimal
	InvestmentBalance decimal.Decimal
}

type investmentRow struct {
	Success              bool            `json:"success"`
	Message              string          `json:"message"`
	NewDZDBalance        decimal.Decimal `json:"new_dzd_balance"`
	NewInvestmentBalance decimal.Decimal `json:"new_investment_balance"`
}

// ProcessInvestment moves amount from DZD into the investment balance (add)
// or back (subtract).
func (a *API) ProcessInvestment(ctx context.Context, userID string, amount decimal.Decimal, op InvestmentOp) (InvestmentResult, error) {
	dbOp := "invest"
	if op == InvestSubtract {
		dbOp = "return"
	}
	row, err := first[investmentRow](ctx, a.client, "process_investment", map[string]any{
		"p_user_id":   userID,
		"p_amount":    amount,
		"p_operation": dbOp,
	})
	if err != nil {
		return InvestmentResult{}, err
	}
	if !row.Success {
		return InvestmentResult{}, &OperationError{Message: orDefault(row.Message, "investment could not be processed")}
	}
	return InvestmentResult{DZD: row.NewDZDBalance, InvestmentBalance: row.NewInvestmentBalance}, nil
}

// OperationError is a business rule rejection reported by a procedure.
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string {
	return e.Message
}

// UserMessage returns the server message unchanged.
func (e *OperationError) UserMessage() string {
	return e.Message
}

// CreateTransaction validates t and appends it to the user's log.
func (a *API) CreateTransaction(ctx context.Context, userID string, t NewTransaction) (model.Transaction, error) {
	tx, err := normalizeTransaction(userID, t)
	if err != nil {
		return model.Transaction{}, err
	}
	var out model.Transaction
	err = a.client.From(tableTransactions).Single().Insert(ctx, tx, &out)
	return out, err
}

// Transactions returns the newest limit transactions, or all of them when
// limit is not positive.
func (a *API) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	var out []model.Transaction
	q := a.client.From(tableTransactions).Select("*").Eq("user_id", userID).Order("created_at", false)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Get(ctx, &out)
	return out, err
}

// CreateInvestment validates and stores an investment.
func (a *API) CreateInvestment(ctx context.Context, userID string, in NewInvestment) (model.Investment, error) {
	inv, err := normalizeInvestment(userID, in)
	if err != nil {
		return model.Investment{}, err
	}
	var out model.Investment
	err = a.client.From(tableInvestments).Single().Insert(ctx, inv, &out)
	return out, err
}

// Investments returns the user's investments, newest first.
func (a *API) Investments(ctx context.Context, userID string) ([]model.Investment, error) {
	var out []model.Investment
	err := a.client.From(tableInvestments).Select("*").Eq("user_id", userID).Order("created_at", false).Get(ctx, &out)
	return out, err
}

// UpdateInvestment patches one investment.
func (a *API) UpdateInvestment(ctx context.Context, id string, u model.InvestmentUpdate) (model.Investment, error) {
	u.UpdatedAt = a.now().UTC()
	var out model.Investment
	err := a.client.From(tableInvestments).Eq("id", id).Single().Update(ctx, u, &out)
	return out, err
}

// CreateSavingsGoal validates and stores a goal.
func (a *API) CreateSavingsGoal(ctx context.Context, userID string, g NewSavingsGoal) (model.SavingsGoal, error) {
	goal, err := normalizeSavingsGoal(userID, g, a.now())
	if err != nil {
		return model.SavingsGoal{}, err
	}
	var out model.SavingsGoal
	err = a.client.From(tableSavingsGoals).Single().Insert(ctx, goal, &out)
	return out, err
}

// SavingsGoals returns the user's active goals, newest first.
func (a *API) SavingsGoals(ctx context.Context, userID string) ([]model.SavingsGoal, error) {
	var out []model.SavingsGoal
	err := a.client.From(tableSavingsGoals).Select("*").Eq("user_id", userID).Eq("status", "active").
		Order("created_at", false).Get(ctx, &out)
	return out, err
}

// UpdateSavingsGoal patches one goal.
func (a *API) UpdateSavingsGoal(ctx context.Context, id string, u model.SavingsGoalUpdate) (model.SavingsGoal, error) {
	u.UpdatedAt = a.now().UTC()
	var out model.SavingsGoal
	err := a.client.From(tableSavingsGoals).Eq("id", id).Single().Update(ctx, u, &out)
	return out, err
}

// Cards returns the user's cards.
func (a *API) Cards(ctx context.Context, userID string) ([]model.Card, error) {
	var out []model.Card
	err := a.client.From(tableCards).Select("*").Eq("user_id", userID).Order("card_type", true).Get(ctx, &out)
	return out, err
}

// CreateCard stores a card.
func (a *API) CreateCard(ctx context.Context, c model.Card) (model.Card, error) {
	var out model.Card
	err := a.client.From(tableCards).Single().Insert(ctx, c, &out)
	return out, err
}

// UpdateCard patches one card.
func (a *API) UpdateCard(ctx context.Context, id string, u model.CardUpdate) (model.Card, error) {
	if u.SpendingLimit != nil && u.SpendingLimit.IsNegative() {
		return model.Card{}, ValidationErrors{{Field: "spending_limit", Description: "spending limit cannot be negative"}}
	}
	u.UpdatedAt = a.now().UTC()
	var out model.Card
	err := a.client.From(tableCards).Eq("id", id).Single().Update(ctx, u, &out)
	return out, err
}

// CreateNotification stores a notification.
func (a *API) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	var out model.Notification
	err := a.client.From(tableNotifications).Single().Insert(ctx, n, &out)
	return out, err
}

// Notifications returns the user's notifications, newest first.
func (a *API) Notifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	err := a.client.From(tableNotifications).Select("*").Eq("user_id", userID).Order("created_at", false).Get(ctx, &out)
	return out, err
}

// MarkNotificationRead flags one notification as read.
func (a *API) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	var out model.Notification
	err := a.client.From(tableNotifications).Eq("id", id).Single().Update(ctx, map[string]any{"is_read": true}, &out)
	return out, err
}

// CreateReferral stores a referral.
func (a *API) CreateReferral(ctx context.Context, r model.Referral) (model.Referral, error) {
	var out model.Referral
	err := a.client.From(tableReferrals).Single().Insert(ctx, r, &out)
	return out, err
}

// Referrals returns the user's referrals, newest first, with the referred
// user's name and email attached.
func (a *API) Referrals(ctx context.Context, userID string) ([]model.Referral, error) {
	var refs []model.Referral
	if err := a.client.From(tableReferrals).Select("*").Eq("referrer_id", userID).
		Order("created_at", false).Get(ctx, &refs); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return refs, nil
	}

	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ReferredID)
	}
	var users []struct {
		ID string `json:"id"`
		model.ReferredUser
	}
	if err := a.client.From(tableUsers).Select("id,full_name,email").In("id", ids).Get(ctx, &users); err != nil {
		return nil, err
	}
	byID := make(map[string]model.ReferredUser, len(users))
	for _, u := range users {
		byID[u.ID] = u.ReferredUser
	}
	for i := range refs {
		if u, ok := byID[refs[i].ReferredID]; ok {
			refs[i].ReferredUser = &u
		}
	}
	return refs, nil
}

// ReferralStats counts the user's referrals and reads their earnings.
func (a *API) ReferralStats(ctx context.Context, userID string) (model.ReferralStats, error) {
	var st model.ReferralStats
	var err error

	if st.TotalReferrals, err = a.client.From(tableReferrals).Eq("referrer_id", userID).Count(ctx); err != nil {
		return st, err
	}
	if st.CompletedReferrals, err = a.client.From(tableReferrals).Eq("referrer_id", userID).
		Eq("status", "completed").Count(ctx); err != nil {
		return st, err
	}
	now := a.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if st.ThisMonthReferrals, err = a.client.From(tableReferrals).Eq("referrer_id", userID).
		Gte("created_at", monthStart).Count(ctx); err != nil {
		return st, err
	}

	var earnings struct {
		ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	}
	if err := a.client.From(tableUsers).Select("referral_earnings").Eq("id", userID).Single().Get(ctx, &earnings); err != nil {
		return st, err
	}
	st.TotalEarnings = earnings.ReferralEarnings
	st.PendingRewards = st.TotalReferrals - st.CompletedReferrals
	return st, nil
}

// Referrer is the owner of a referral code.
type Referrer struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// ErrInvalidReferralCode is returned for unknown or empty referral codes.
var ErrInvalidReferralCode = errors.New("invalid referral code")

// ValidateReferralCode looks up the user who owns code.
func (a *API) ValidateReferralCode(ctx context.Context, code string) (Referrer, error) {
	code = normalizeCode(code)
	if code == "" {
		return Referrer{}, fmt.Errorf("referral code is required: %w", ErrInvalidReferralCode)
	}
	var r Referrer
	err := a.client.From(tableUsers).Select("id,full_name").Eq("referral_code", code).Single().Get(ctx, &r)
	if backend.IsNotFound(err) {
		return Referrer{}, ErrInvalidReferralCode
	}
	return r, err
}

// TransferLimits returns the user's override row, or nil when the user has
// none.
func (a *API) TransferLimits(ctx context.Context, userID string) (*model.TransferLimits, error) {
	var l model.TransferLimits
	err := a.client.From(tableTransferLimits).Select("*").Eq("user_id", userID).Single().Get(ctx, &l)
	if backend.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
