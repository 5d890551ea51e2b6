package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/model"
)

// UpdateProfile saves the editable profile fields.
func (s *Session) UpdateProfile(ctx context.Context, u model.ProfileUpdate) (model.Profile, error) {
	if s.userID == "" {
		return model.Profile{}, ErrNoUser
	}
	p, err := s.api.UpdateProfile(ctx, s.userID, u)
	if err != nil {
		return model.Profile{}, err
	}
	s.mu.Lock()
	s.state.Profile = &p
	s.mu.Unlock()
	return p, nil
}

// UpdateBalance replaces only the supplied balance fields.
func (s *Session) UpdateBalance(ctx context.Context, u model.BalanceUpdate) (model.Balance, error) {
	if s.userID == "" {
		return model.Balance{}, ErrNoUser
	}
	b, err := s.api.UpdateBalance(ctx, s.userID, u)
	if err != nil {
		return model.Balance{}, err
	}
	s.mu.Lock()
	s.state.Balance = &b
	s.state.InvestmentBalance = b.InvestmentBalance
	s.mu.Unlock()
	return b, nil
}

// AddTransaction validates and records a transaction.
func (s *Session) AddTransaction(ctx context.Context, t NewTransaction) (model.Transaction, error) {
	if s.userID == "" {
		return model.Transaction{}, ErrNoUser
	}
	tx, err := s.api.CreateTransaction(ctx, s.userID, t)
	if err != nil {
		return model.Transaction{}, err
	}
	s.mu.Lock()
	s.state.Transactions = prepend(s.state.Transactions, tx)
	s.mu.Unlock()
	return tx, nil
}

// AddInvestment validates and records an investment.
func (s *Session) AddInvestment(ctx context.Context, in NewInvestment) (model.Investment, error) {
	if s.userID == "" {
		return model.Investment{}, ErrNoUser
	}
	inv, err := s.api.CreateInvestment(ctx, s.userID, in)
	if err != nil {
		return model.Investment{}, err
	}
	s.mu.Lock()
	s.state.Investments = prepend(s.state.Investments, inv)
	s.mu.Unlock()
	return inv, nil
}

// UpdateInvestment patches one investment.
func (s *Session) UpdateInvestment(ctx context.Context, id string, u model.InvestmentUpdate) (model.Investment, error) {
	inv, err := s.api.UpdateInvestment(ctx, id, u)
	if err != nil {
		return model.Investment{}, err
	}
	s.mu.Lock()
	replace(s.state.Investments, inv, func(x model.Investment) bool { return x.ID == id })
	s.mu.Unlock()
	return inv, nil
}

// AddSavingsGoal validates and records a goal.
func (s *Session) AddSavingsGoal(ctx context.Context, g NewSavingsGoal) (model.SavingsGoal, error) {
	if s.userID == "" {
		return model.SavingsGoal{}, ErrNoUser
	}
	goal, err := s.api.CreateSavingsGoal(ctx, s.userID, g)
	if err != nil {
		return model.SavingsGoal{}, err
	}
	s.mu.Lock()
	s.state.SavingsGoals = prepend(s.state.SavingsGoals, goal)
	s.mu.Unlock()
	return goal, nil
}

// UpdateSavingsGoal patches one goal.
func (s *Session) UpdateSavingsGoal(ctx context.Context, id string, u model.SavingsGoalUpdate) (model.SavingsGoal, error) {
	goal, err := s.api.UpdateSavingsGoal(ctx, id, u)
	if err != nil {
		return model.SavingsGoal{}, err
	}
	s.mu.Lock()
	replace(s.state.SavingsGoals, goal, func(x model.SavingsGoal) bool { return x.ID == id })
	s.mu.Unlock()
	return goal, nil
}

// UpdateCard freezes, unfreezes or re-limits a card.
func (s *Session) UpdateCard(ctx context.Context, id string, u model.CardUpdate) (model.Card, error) {
	c, err := s.api.UpdateCard(ctx, id, u)
	if err != nil {
		return model.Card{}, err
	}
	s.mu.Lock()
	replace(s.state.Cards, c, func(x model.Card) bool { return x.ID == id })
	s.mu.Unlock()
	return c, nil
}

// AddNotification stores a notification for the user.
func (s *Session) AddNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if s.userID == "" {
		return model.Notification{}, ErrNoUser
	}
	n.UserID = s.userID
	out, err := s.api.CreateNotification(ctx, n)
	if err != nil {
		return model.Notification{}, err
	}
	s.mu.Lock()
	s.state.Notifications = prepend(s.state.Notifications, out)
	s.mu.Unlock()
	return out, nil
}

// MarkNotificationRead flags one notification as read.
func (s *Session) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	n, err := s.api.MarkNotificationRead(ctx, id)
	if err != nil {
		return model.Notification{}, err
	}
	s.mu.Lock()
	replace(s.state.Notifications, n, func(x model.Notification) bool { return x.ID == id })
	s.mu.Unlock()
	return n, nil
}

// AddReferral records a referral made by the user.
func (s *Session) AddReferral(ctx context.Context, r model.Referral) (model.Referral, error) {
	if s.userID == "" {
		return model.Referral{}, ErrNoUser
	}
	r.ReferrerID = s.userID
	r.ReferralCode = normalizeCode(r.ReferralCode)
	out, err := s.api.CreateReferral(ctx, r)
	if err != nil {
		return model.Referral{}, err
	}
	s.mu.Lock()
	s.state.Referrals = prepend(s.state.Referrals, out)
	s.mu.Unlock()
	return out, nil
}

// UpdateInvestmentBalance moves amount into (add) or out of (subtract) the
// investment balance.
func (s *Session) UpdateInvestmentBalance(ctx context.Context, amount decimal.Decimal, op InvestmentOp) (InvestmentResult, error) {
	if s.userID == "" {
		return InvestmentResult{}, ErrNoUser
	}
	res, err := s.api.ProcessInvestment(ctx, s.userID, amount, op)
	if err != nil {
		return InvestmentResult{}, err
	}
	s.mu.Lock()
	s.state.InvestmentBalance = res.InvestmentBalance
	if s.state.Balance != nil {
		s.state.Balance.DZD = res.DZD
		s.state.Balance.InvestmentBalance = res.InvestmentBalance
	}
	s.mu.Unlock()
	return res, nil
}

// Recharge adds amount DZD to the wallet, records a recharge transaction and
// notifies the user.
func (s *Session) Recharge(ctx context.Context, amount decimal.Decimal) (model.Balance, error) {
	if !amount.IsPositive() {
		return model.Balance{}, ValidationErrors{{Field: "amount", Description: "recharge amount must be greater than zero"}}
	}
	bal, err := s.currentBalance(ctx)
	if err != nil {
		return model.Balance{}, err
	}
	updated, err := s.UpdateBalance(ctx, model.BalanceUpdate{DZD: model.Dec(bal.DZD.Add(amount))})
	if err != nil {
		return model.Balance{}, err
	}
	if _, err := s.AddTransaction(ctx, NewTransaction{
		Type:        model.TxRecharge,
		Amount:      amount,
		Currency:    string(model.CurrencyDZD),
		Description: "Wallet recharge",
	}); err != nil {
		return updated, fmt.Errorf("recording recharge: %w", err)
	}
	if _, err := s.AddNotification(ctx, model.Notification{
		Type:    "success",
		Title:   "Recharge successful",
		Message: fmt.Sprintf("%s DZD was added to your wallet", amount.StringFixed(2)),
	}); err != nil {
		s.log.Warn("recharge notification", "error", err)
	}
	return updated, nil
}

// DepositToGoal moves amount DZD from the wallet into a savings goal.
//
// The backend has no procedure spanning both tables, so the wallet is debited
// first and the goal credited second. When the credit fails the debit is
// reversed; if the reversal fails too the returned error says how much DZD
// left the wallet without reaching the goal.
func (s *Session) DepositToGoal(ctx context.Context, goalID string, amount decimal.Decimal) (model.SavingsGoal, error) {
	if !amount.IsPositive() {
		return model.SavingsGoal{}, ValidationErrors{{Field: "amount", Description: "deposit amount must be greater than zero"}}
	}
	bal, err := s.currentBalance(ctx)
	if err != nil {
		return model.SavingsGoal{}, err
	}
	if bal.DZD.LessThan(amount) {
		return model.SavingsGoal{}, ErrInsufficient
	}
	goal, ok := s.goal(goalID)
	if !ok {
		return model.SavingsGoal{}, fmt.Errorf("savings goal %s is not loaded", goalID)
	}

	if _, err := s.UpdateBalance(ctx, model.BalanceUpdate{DZD: model.Dec(bal.DZD.Sub(amount))}); err != nil {
		return model.SavingsGoal{}, err
	}
	updated, err := s.UpdateSavingsGoal(ctx, goalID, model.SavingsGoalUpdate{
		CurrentAmount: model.Dec(goal.CurrentAmount.Add(amount)),
	})
	if err != nil {
		err = fmt.Errorf("crediting goal: %w", err)
		if _, rerr := s.UpdateBalance(ctx, model.BalanceUpdate{DZD: model.Dec(bal.DZD)}); rerr != nil {
			return model.SavingsGoal{}, errors.Join(err,
				fmt.Errorf("restoring %s DZD debited for goal %s: %w", amount.StringFixed(2), goalID, rerr))
		}
		return model.SavingsGoal{}, err
	}
	if _, err := s.AddTransaction(ctx, NewTransaction{
		Type:        model.TxTransfer,
		Amount:      amount,
		Description: "Savings deposit: " + goal.Name,
	}); err != nil {
		return updated, fmt.Errorf("recording deposit: %w", err)
	}
	return updated, nil
}

// ReferralStats aggregates the user's referrals.
func (s *Session) ReferralStats(ctx context.Context) (model.ReferralStats, error) {
	if s.userID == "" {
		return model.ReferralStats{}, ErrNoUser
	}
	return s.api.ReferralStats(ctx, s.userID)
}

// ValidateReferralCode looks up the owner of a referral code.
func (s *Session) ValidateReferralCode(ctx context.Context, code string) (Referrer, error) {
	return s.api.ValidateReferralCode(ctx, code)
}

// currentBalance returns the cached balance, fetching it when not loaded.
func (s *Session) currentBalance(ctx context.Context) (model.Balance, error) {
	if b, ok := s.Balance(); ok {
		return b, nil
	}
	if s.userID == "" {
		return model.Balance{}, ErrNoUser
	}
	b, err := s.api.Balance(ctx, s.userID)
	if err != nil {
		return model.Balance{}, err
	}
	if b == nil {
		return model.Balance{}, fmt.Errorf("no balance for user %s", s.userID)
	}
	s.mu.Lock()
	s.state.Balance = b
	s.mu.Unlock()
	return *b, nil
}

func (s *Session) goal(id string) (model.SavingsGoal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.state.SavingsGoals {
		if g.ID == id {
			return g, true
		}
	}
	return model.SavingsGoal{}, false
}

func prepend[T any](list []T, v T) []T {
	return append([]T{v}, list...)
}

func replace[T any](list []T, v T, match func(T) bool) {
	for i := range list {
		if match(list[i]) {
			list[i] = v
		}
	}
}
