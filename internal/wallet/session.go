package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/clock"
	"github.com/dinarwallet/wallet/internal/model"
)

// Client-side transfer rules applied before the procedure is called.
var (
	ErrNoUser            = errors.New("user id is not available")
	ErrNoEmail           = errors.New("profile email is not available")
	ErrNoRecipient       = errors.New("recipient identifier is required")
	ErrNonPositiveAmount = errors.New("transfer amount must be greater than zero")
	ErrInsufficient      = errors.New("insufficient balance")
)

// DefaultMinTransfer is the smallest transfer the client submits.
var DefaultMinTransfer = decimal.NewFromInt(100)

// Snapshot is a copy of the cached user data.
type Snapshot struct {
	Profile           *model.Profile
	Balance           *model.Balance
	Transactions      []model.Transaction
	Investments       []model.Investment
	SavingsGoals      []model.SavingsGoal
	Cards             []model.Card
	Notifications     []model.Notification
	Referrals         []model.Referral
	InvestmentBalance decimal.Decimal
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	if s.Balance != nil {
		b := *s.Balance
		out.Balance = &b
	}
	out.Transactions = slices.Clone(s.Transactions)
	out.Investments = slices.Clone(s.Investments)
	out.SavingsGoals = slices.Clone(s.SavingsGoals)
	out.Cards = slices.Clone(s.Cards)
	out.Notifications = slices.Clone(s.Notifications)
	out.Referrals = slices.Clone(s.Referrals)
	return out
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the clock used for the post-transfer reload.
func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithReloadAfter sets the delay before the full reload that follows a
// successful transfer. Zero disables the reload.
func WithReloadAfter(d time.Duration) SessionOption {
	return func(s *Session) { s.reloadAfter = d }
}

// WithMinTransfer sets the smallest amount ProcessTransfer submits.
func WithMinTransfer(d decimal.Decimal) SessionOption {
	return func(s *Session) { s.minTransfer = d }
}

// WithDefaultDescription sets the description used for transfers without one.
func WithDefaultDescription(desc string) SessionOption {
	return func(s *Session) { s.defaultDescription = desc }
}

// WithSessionLogger sets the logger for background failures.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// Session holds the signed-in user's data and exposes every operation the
// front end performs. It is safe for concurrent use.
type Session struct {
	api    *API
	userID string

	clock              clock.Clock
	reloadAfter        time.Duration
	minTransfer        decimal.Decimal
	defaultDescription string
	log                *slog.Logger

	mu     sync.RWMutex
	state  Snapshot
	reload clock.Timer
}

// NewSession creates a session for userID.
func NewSession(api *API, userID string, opts ...SessionOption) *Session {
	s := &Session{
		api:                api,
		userID:             userID,
		clock:              clock.Real{},
		reloadAfter:        time.Second,
		minTransfer:        DefaultMinTransfer,
		defaultDescription: "Instant transfer",
		log:                slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the id of the signed-in user.
func (s *Session) UserID() string {
	return s.userID
}

// Snapshot returns a copy of the cached data.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Balance returns the cached balance and whether one is loaded.
func (s *Session) Balance() (model.Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Balance == nil {
		return model.Balance{}, false
	}
	return *s.state.Balance, true
}

// AvailableDZD returns the cached DZD balance, or nil when no balance is
// loaded.
func (s *Session) AvailableDZD() *decimal.Decimal {
	if b, ok := s.Balance(); ok {
		return &b.DZD
	}
	return nil
}

// Close cancels a pending reload.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reload != nil {
		s.reload.Stop()
		s.reload = nil
	}
}

// Load provisions a default balance and cards when missing, then fetches all
// user data concurrently. Data that loaded is cached even when other reads
// fail; the failures are returned joined.
func (s *Session) Load(ctx context.Context) error {
	if s.userID == "" {
		return ErrNoUser
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.ensureBalance(ctx); err != nil {
			s.log.Warn("provisioning balance", "user", s.userID, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.ensureCards(ctx); err != nil {
			s.log.Warn("provisioning cards", "user", s.userID, "error", err)
		}
	}()
	wg.Wait()

	var (
		next Snapshot
		uid  = s.userID
	)
	// Each section is applied to the cache only when its own read succeeded.
	sections := []struct {
		what  string
		load  func() error
		apply func(*Snapshot)
	}{
		{"profile", func() error {
			p, err := s.api.Profile(ctx, uid)
			next.Profile = &p
			return err
		}, func(st *Snapshot) { st.Profile = next.Profile }},
		{"balance", func() (err error) {
			next.Balance, err = s.api.Balance(ctx, uid)
			return err
		}, func(st *Snapshot) {
			if next.Balance != nil {
				st.Balance = next.Balance
			}
		}},
		{"transactions", func() (err error) {
			next.Transactions, err = s.api.Transactions(ctx, uid, DefaultTransactionLimit)
			return err
		}, func(st *Snapshot) { st.Transactions = next.Transactions }},
		{"investments", func() (err error) {
			next.Investments, err = s.api.Investments(ctx, uid)
			return err
		}, func(st *Snapshot) { st.Investments = next.Investments }},
		{"savings goals", func() (err error) {
			next.SavingsGoals, err = s.api.SavingsGoals(ctx, uid)
			return err
		}, func(st *Snapshot) { st.SavingsGoals = next.SavingsGoals }},
		{"cards", func() (err error) {
			next.Cards, err = s.api.Cards(ctx, uid)
			return err
		}, func(st *Snapshot) { st.Cards = next.Cards }},
		{"notifications", func() (err error) {
			next.Notifications, err = s.api.Notifications(ctx, uid)
			return err
		}, func(st *Snapshot) { st.Notifications = next.Notifications }},
		{"referrals", func() (err error) {
			next.Referrals, err = s.api.Referrals(ctx, uid)
			return err
		}, func(st *Snapshot) { st.Referrals = next.Referrals }},
		{"investment balance", func() (err error) {
			next.InvestmentBalance, err = s.api.InvestmentBalance(ctx, uid)
			return err
		}, func(st *Snapshot) { st.InvestmentBalance = next.InvestmentBalance }},
	}

	results := make([]error, len(sections))
	wg.Add(len(sections))
	for i, sec := range sections {
		go func() {
			defer wg.Done()
			results[i] = sec.load()
		}()
	}
	wg.Wait()

	var errs []error
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sec := range sections {
		if err := results[i]; err != nil {
			errs = append(errs, fmt.Errorf("loading %s: %w", sec.what, err))
			continue
		}
		sec.apply(&s.state)
	}
	return errors.Join(errs...)
}

func (s *Session) ensureBalance(ctx context.Context) error {
	b, err := s.api.Balance(ctx, s.userID)
	if err != nil || b != nil {
		return err
	}
	_, err = s.api.CreateBalance(ctx, DefaultBalance(s.userID))
	return err
}

func (s *Session) ensureCards(ctx context.Context) error {
	cards, err := s.api.Cards(ctx, s.userID)
	if err != nil || len(cards) > 0 {
		return err
	}
	defaults, err := DefaultCards(s.userID)
	if err != nil {
		return err
	}
	for _, c := range defaults {
		if _, err := s.api.CreateCard(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) email(ctx context.Context) (string, error) {
	s.mu.RLock()
	p := s.state.Profile
	s.mu.RUnlock()
	if p != nil && p.Email != "" {
		return p.Email, nil
	}
	if s.userID == "" {
		return "", ErrNoUser
	}
	prof, err := s.api.Profile(ctx, s.userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoEmail, err)
	}
	if prof.Email == "" {
		return "", ErrNoEmail
	}
	s.mu.Lock()
	s.state.Profile = &prof
	s.mu.Unlock()
	return prof.Email, nil
}

// ProcessTransfer sends amount DZD to the recipient (email or account
// number). On success the cached DZD balance is replaced by the server's
// value immediately and a full reload is scheduled.
func (s *Session) ProcessTransfer(ctx context.Context, amount decimal.Decimal, recipient, description string) (model.TransferResult, error) {
	start := s.clock.Now()
	email, err := s.email(ctx)
	if err != nil {
		return model.TransferResult{}, err
	}
	recipient = strings.TrimSpace(recipient)
	switch {
	case !amount.IsPositive():
		return model.TransferResult{}, ErrNonPositiveAmount
	case recipient == "":
		return model.TransferResult{}, ErrNoRecipient
	case amount.LessThan(s.minTransfer):
		return model.TransferResult{}, &TransferError{Message: fmt.Sprintf("Minimum transfer amount is %s DZD", s.minTransfer)}
	}
	if description == "" {
		description = s.defaultDescription
	}

	out, err := s.api.Transfer(ctx, TransferRequest{
		SenderEmail: email,
		Recipient:   recipient,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return model.TransferResult{}, err
	}
	if !out.Success {
		return model.TransferResult{}, &TransferError{Message: orDefault(out.Message, "transfer could not be processed")}
	}

	res := model.TransferResult{
		Success:        true,
		Message:        orDefault(out.Message, "Transfer completed successfully"),
		Reference:      out.ReferenceNumber,
		ProcessingTime: s.clock.Now().Sub(start),
	}
	s.mu.Lock()
	if out.SenderNewBalance != nil {
		res.NewBalance = *out.SenderNewBalance
		if s.state.Balance != nil {
			s.state.Balance.DZD = *out.SenderNewBalance
		}
	}
	s.scheduleReloadLocked()
	s.mu.Unlock()

	s.log.Info("transfer completed", "reference", res.Reference, "amount", amount.String(), "duration", res.ProcessingTime)
	return res, nil
}

// scheduleReloadLocked replaces any pending reload with a new one.
func (s *Session) scheduleReloadLocked() {
	if s.reloadAfter <= 0 {
		return
	}
	if s.reload != nil {
		s.reload.Stop()
	}
	s.reload = s.clock.AfterFunc(s.reloadAfter, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Load(ctx); err != nil {
			s.log.Warn("reloading after transfer", "error", err)
		}
	})
}

// SearchUsers finds candidate recipients.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]model.UserMatch, error) {
	return s.api.SearchUsers(ctx, query)
}

// InstantTransferHistory returns the user's instant transfers, newest first,
// capped at limit (0 means no cap).
func (s *Session) InstantTransferHistory(ctx context.Context, limit int) ([]model.TransferRecord, error) {
	email, err := s.email(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.api.TransferHistory(ctx, email)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// InstantTransferStats returns usage against the transfer limits.
func (s *Session) InstantTransferStats(ctx context.Context) (model.TransferStats, error) {
	if s.userID == "" {
		return model.TransferStats{}, ErrNoUser
	}
	return s.api.TransferStats(ctx, s.userID)
}

// CheckInstantTransferLimits asks whether amount fits the remaining limits.
func (s *Session) CheckInstantTransferLimits(ctx context.Context, amount decimal.Decimal) (model.LimitCheck, error) {
	if s.userID == "" {
		return model.LimitCheck{}, ErrNoUser
	}
	return s.api.CheckTransferLimits(ctx, s.userID, amount)
}

// TransferLimits returns the user's limit override, or nil.
func (s *Session) TransferLimits(ctx context.Context) (*model.TransferLimits, error) {
	if s.userID == "" {
		return nil, ErrNoUser
	}
	return s.api.TransferLimits(ctx, s.userID)
}

// UserBalanceByIdentifier looks up a balance by email or account number.
func (s *Session) UserBalanceByIdentifier(ctx context.Context, identifier string) (*model.IdentifiedBalance, error) {
	return s.api.UserBalanceByIdentifier(ctx, identifier)
}

// SetUserBalanceByIdentifier replaces the identified user's DZD balance.
func (s *Session) SetUserBalanceByIdentifier(ctx context.Context, identifier string, dzd decimal.Decimal) (*model.IdentifiedBalance, error) {
	return s.api.SetUserBalanceByIdentifier(ctx, identifier, dzd)
}
