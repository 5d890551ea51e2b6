package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinarwallet/wallet/internal/backend"
	"github.com/dinarwallet/wallet/internal/clock"
	"github.com/dinarwallet/wallet/internal/devserver"
	"github.com/dinarwallet/wallet/internal/model"
)

const (
	testAnonKey = "anon"
	testSecret  = "secret"
)

var testStart = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

type env struct {
	store *devserver.MemStore
	url   string
	users map[string]devserver.SeededUser
	clock *clock.Manual

	// failSelect makes table reads with this select list fail with a 500.
	failSelect atomic.Pointer[string]
	// failWhen makes matching requests fail with a 500.
	failWhen atomic.Pointer[func(*http.Request) bool]
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := devserver.NewMemStore()
	seeded, err := devserver.Seed(context.Background(), store, devserver.DemoUsers())
	require.NoError(t, err)

	e := &env{store: store, users: map[string]devserver.SeededUser{}, clock: clock.NewManual(testStart)}

	srv := devserver.NewServer(store, devserver.Options{AnonKey: testAnonKey, JWTSecret: testSecret})
	h := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failed := false
		if sel := e.failSelect.Load(); sel != nil && r.Method == http.MethodGet && r.URL.Query().Get("select") == *sel {
			failed = true
		}
		if fn := e.failWhen.Load(); fn != nil && (*fn)(r) {
			failed = true
		}
		if failed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"XX000","message":"boom"}`))
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	e.url = ts.URL
	for _, u := range seeded {
		e.users[u.Email] = u
	}
	return e
}

func (e *env) api(t *testing.T, email string) *API {
	t.Helper()
	u := e.users[email]
	token, err := devserver.IssueToken(testSecret, u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	c, err := backend.New(e.url, testAnonKey, backend.WithAccessToken(token))
	require.NoError(t, err)
	return NewAPI(c)
}

func (e *env) session(t *testing.T, email string, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithClock(e.clock)}, opts...)
	s := NewSession(e.api(t, email), e.users[email].ID, opts...)
	t.Cleanup(s.Close)
	return s
}

func TestSession_LoadProvisionsDefaults(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")

	require.NoError(t, s.Load(context.Background()))
	snap := s.Snapshot()

	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Amina Haddad", snap.Profile.FullName)
	require.NotNil(t, snap.Balance)
	assert.True(t, snap.Balance.DZD.Equal(dec("15000")))
	assert.True(t, snap.Balance.GBP.Equal(dec("65.5")))

	require.Len(t, snap.Cards, 2)
	assert.Equal(t, model.CardSolid, snap.Cards[0].CardType)
	assert.True(t, snap.Cards[0].SpendingLimit.Equal(dec("100000")))
	assert.Equal(t, model.CardVirtual, snap.Cards[1].CardType)
	assert.True(t, snap.Cards[1].SpendingLimit.Equal(dec("50000")))

	// A second load does not provision more cards.
	require.NoError(t, s.Load(context.Background()))
	assert.Len(t, s.Snapshot().Cards, 2)
}

func TestSession_LoadWithoutUser(t *testing.T) {
	e := newEnv(t)
	s := NewSession(e.api(t, "amina@example.dz"), "")
	assert.ErrorIs(t, s.Load(context.Background()), ErrNoUser)
}

func TestSession_ProcessTransfer(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz", WithReloadAfter(time.Second))
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	res, err := s.ProcessTransfer(ctx, dec("2500"), " yacine@example.dz ", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Regexp(t, `^TRF-\d{8}-000001$`, res.Reference)
	assert.True(t, res.NewBalance.Equal(dec("12500")))

	bal, ok := s.Balance()
	require.True(t, ok)
	assert.True(t, bal.DZD.Equal(dec("12500")), "cached balance updated immediately")

	// The new transactions appear after the scheduled reload.
	assert.Len(t, s.Snapshot().Transactions, 0)
	assert.Equal(t, 1, e.clock.Pending())
	e.clock.Advance(time.Second)
	txs := s.Snapshot().Transactions
	require.Len(t, txs, 1)
	assert.Equal(t, "Instant transfer", txs[0].Description)
	assert.Equal(t, res.Reference, txs[0].Reference)

	hist, err := s.InstantTransferHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.DirectionSent, hist[0].Direction)
	assert.Equal(t, "yacine@example.dz", hist[0].Counterparty)

	stats, err := s.InstantTransferStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DailyCount)
	assert.True(t, stats.DailyTotal.Equal(dec("2500")))
}

func TestSession_ProcessTransfer_ServerRefusal(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	_, err := s.ProcessTransfer(ctx, dec("50000"), "yacine@example.dz", "")
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Insufficient balance", te.UserMessage())

	_, err = s.ProcessTransfer(ctx, dec("500"), "nobody@example.dz", "")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Recipient not found", te.Message)

	bal, _ := s.Balance()
	assert.True(t, bal.DZD.Equal(dec("15000")))
	assert.Zero(t, e.clock.Pending(), "no reload after a failure")
}

func TestSession_ProcessTransfer_ClientChecks(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()

	_, err := s.ProcessTransfer(ctx, dec("0"), "yacine@example.dz", "")
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = s.ProcessTransfer(ctx, dec("500"), "   ", "")
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = s.ProcessTransfer(ctx, dec("99"), "yacine@example.dz", "")
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Minimum transfer amount is 100 DZD", te.Message)
}

func TestSession_ProcessTransfer_ForeignSenderRejected(t *testing.T) {
	e := newEnv(t)
	api := e.api(t, "yacine@example.dz")
	_, err := api.Transfer(context.Background(), TransferRequest{
		SenderEmail: "amina@example.dz",
		Recipient:   "yacine@example.dz",
		Amount:      dec("500"),
	})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "sender does not match the authenticated user", be.UserMessage())
}

func TestSession_SearchUsers(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()

	matches, err := s.SearchUsers(ctx, "sar")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Sara Mansouri", matches[0].FullName)
	assert.Equal(t, e.users["sara@example.dz"].AccountNumber, matches[0].AccountNumber)

	matches, err = s.SearchUsers(ctx, " s ")
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestSession_TransferLimits(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()

	limits, err := s.TransferLimits(ctx)
	require.NoError(t, err)
	assert.Nil(t, limits)

	check, err := s.CheckInstantTransferLimits(ctx, dec("600000"))
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.NotEmpty(t, check.Reason)
}

func TestSession_RechargeAndDeposit(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	bal, err := s.Recharge(ctx, dec("1000"))
	require.NoError(t, err)
	assert.True(t, bal.DZD.Equal(dec("16000")))
	snap := s.Snapshot()
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, model.TxRecharge, snap.Transactions[0].Type)
	require.Len(t, snap.Notifications, 1)

	goal, err := s.AddSavingsGoal(ctx, NewSavingsGoal{Name: "Laptop", TargetAmount: dec("50000"), Deadline: time.Now().AddDate(0, 3, 0)})
	require.NoError(t, err)

	_, err = s.DepositToGoal(ctx, goal.ID, dec("20000"))
	assert.ErrorIs(t, err, ErrInsufficient)

	updated, err := s.DepositToGoal(ctx, goal.ID, dec("6000"))
	require.NoError(t, err)
	assert.True(t, updated.CurrentAmount.Equal(dec("6000")))
	bal, _ = s.Balance()
	assert.True(t, bal.DZD.Equal(dec("10000")))
	assert.Len(t, s.Snapshot().Transactions, 2)
}

func TestSession_DepositToGoalRestoresBalanceWhenCreditFails(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	goal, err := s.AddSavingsGoal(ctx, NewSavingsGoal{Name: "Laptop", TargetAmount: dec("50000"), Deadline: time.Now().AddDate(0, 3, 0)})
	require.NoError(t, err)

	failGoalUpdates := func(r *http.Request) bool {
		return r.Method == http.MethodPatch && r.URL.Path == "/rest/v1/savings_goals"
	}
	e.failWhen.Store(&failGoalUpdates)
	_, err = s.DepositToGoal(ctx, goal.ID, dec("6000"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "crediting goal")
	assert.NotContains(t, err.Error(), "restoring")

	bal, _ := s.Balance()
	assert.True(t, bal.DZD.Equal(dec("15000")), "got %s", bal.DZD)
	e.failWhen.Store(nil)
	require.NoError(t, s.Load(ctx))
	bal, _ = s.Balance()
	assert.True(t, bal.DZD.Equal(dec("15000")), "server balance %s", bal.DZD)
	assert.True(t, s.Snapshot().SavingsGoals[0].CurrentAmount.IsZero())
	assert.Empty(t, s.Snapshot().Transactions)
}

func TestSession_DepositToGoalReportsStrandedDebit(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	goal, err := s.AddSavingsGoal(ctx, NewSavingsGoal{Name: "Laptop", TargetAmount: dec("50000"), Deadline: time.Now().AddDate(0, 3, 0)})
	require.NoError(t, err)

	// The debit goes through, then every later balance or goal update fails.
	var patches atomic.Int32
	failAfterDebit := func(r *http.Request) bool {
		return r.Method == http.MethodPatch && patches.Add(1) > 1
	}
	e.failWhen.Store(&failAfterDebit)
	_, err = s.DepositToGoal(ctx, goal.ID, dec("6000"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "crediting goal")
	assert.ErrorContains(t, err, "restoring 6000.00 DZD debited for goal "+goal.ID)
}

func TestSession_Investments(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	inv, err := s.AddInvestment(ctx, NewInvestment{
		Type:       model.InvestQuarterly,
		Amount:     dec("3000"),
		ProfitRate: dec("8"),
		StartDate:  testStart,
		EndDate:    testStart.AddDate(0, 3, 0),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)

	res, err := s.UpdateInvestmentBalance(ctx, dec("3000"), InvestAdd)
	require.NoError(t, err)
	assert.True(t, res.DZD.Equal(dec("12000")))
	assert.True(t, s.Snapshot().InvestmentBalance.Equal(dec("3000")))

	_, err = s.UpdateInvestmentBalance(ctx, dec("5000"), InvestSubtract)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)

	status := "completed"
	done, err := s.UpdateInvestment(ctx, inv.ID, model.InvestmentUpdate{Status: &status, Profit: model.Dec(dec("240"))})
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, "completed", s.Snapshot().Investments[0].Status)
}

func TestSession_LoadKeepsSectionsThatFailed(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	_, err := s.UpdateInvestmentBalance(ctx, dec("1000"), InvestAdd)
	require.NoError(t, err)
	require.True(t, s.Snapshot().InvestmentBalance.Equal(dec("1000")))

	sel := "investment_balance"
	e.failSelect.Store(&sel)
	err = s.Load(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "loading investment balance")
	assert.NotContains(t, err.Error(), "loading balance:")

	snap := s.Snapshot()
	assert.True(t, snap.InvestmentBalance.Equal(dec("1000")), "got %s", snap.InvestmentBalance)
	require.NotNil(t, snap.Balance)
	assert.True(t, snap.Balance.DZD.Equal(dec("14000")))
	assert.Len(t, snap.Cards, 2)
}

func TestSession_LoadReplacesWithEmptyResults(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	_, err := s.AddNotification(ctx, model.Notification{Title: "Hello", Message: "world", Type: "info"})
	require.NoError(t, err)
	require.NotEmpty(t, s.Snapshot().Notifications)

	// Hand the notifications to another user so amina's list reads back empty.
	require.NoError(t, e.store.Write(ctx, func(tb devserver.Tables) error {
		_, err := tb.Update(devserver.TableNotifications,
			devserver.Where("user_id", devserver.OpEq, e.users["amina@example.dz"].ID),
			devserver.Row{"user_id": e.users["sara@example.dz"].ID})
		return err
	}))
	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Snapshot().Notifications)
}

func TestSession_CardsProfileNotifications(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	card := s.Snapshot().Cards[0]
	frozen := true
	c, err := s.UpdateCard(ctx, card.ID, model.CardUpdate{IsFrozen: &frozen})
	require.NoError(t, err)
	assert.True(t, c.IsFrozen)
	assert.True(t, s.Snapshot().Cards[0].IsFrozen)

	_, err = s.UpdateCard(ctx, card.ID, model.CardUpdate{SpendingLimit: model.Dec(dec("-1"))})
	assert.Error(t, err)

	phone := "+213550009999"
	p, err := s.UpdateProfile(ctx, model.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, p.Phone)
	assert.Equal(t, "Amina Haddad", p.FullName)

	n, err := s.AddNotification(ctx, model.Notification{Type: "info", Title: "Hello", Message: "Welcome"})
	require.NoError(t, err)
	assert.False(t, n.IsRead)
	n, err = s.MarkNotificationRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
}

func TestSession_Referrals(t *testing.T) {
	e := newEnv(t)
	amina := e.users["amina@example.dz"]
	_, err := devserver.Seed(context.Background(), e.store, []devserver.SeedUser{
		{Email: "karim@example.dz", FullName: "Karim Zerrouki", ReferredBy: amina.ReferralCode},
	})
	require.NoError(t, err)

	s := e.session(t, "amina@example.dz")
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	refs := s.Snapshot().Referrals
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].ReferredUser)
	assert.Equal(t, "Karim Zerrouki", refs[0].ReferredUser.FullName)

	stats, err := s.ReferralStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReferrals)
	assert.Equal(t, 1, stats.CompletedReferrals)
	assert.Equal(t, 1, stats.ThisMonthReferrals)
	assert.Zero(t, stats.PendingRewards)
	assert.True(t, stats.TotalEarnings.Equal(dec("500")))

	ref, err := s.ValidateReferralCode(ctx, " "+amina.ReferralCode+" ")
	require.NoError(t, err)
	assert.Equal(t, amina.ID, ref.ID)

	_, err = s.ValidateReferralCode(ctx, "NOPE000")
	assert.ErrorIs(t, err, ErrInvalidReferralCode)
	_, err = s.ValidateReferralCode(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidReferralCode)
}

func TestSession_BalanceByIdentifier(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "sara@example.dz")
	ctx := context.Background()
	sara := e.users["sara@example.dz"]

	b, err := s.SetUserBalanceByIdentifier(ctx, sara.AccountNumber, dec("777"))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, sara.Email, b.Email)

	b, err = s.UserBalanceByIdentifier(ctx, sara.Email)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.DZD.Equal(dec("777")))

	b, err = s.UserBalanceByIdentifier(ctx, "ghost@example.dz")
	require.NoError(t, err)
	assert.Nil(t, b)
}
