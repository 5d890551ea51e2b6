package devserver

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/id"
)

const defaultTransferDescription = "Instant transfer"

// transferOutcome is the single row returned by process_simple_transfer.
type transferOutcome struct {
	Success             bool             `json:"success"`
	Message             string           `json:"message"`
	ReferenceNumber     string           `json:"reference_number,omitempty"`
	SenderNewBalance    *decimal.Decimal `json:"sender_new_balance,omitempty"`
	RecipientNewBalance *decimal.Decimal `json:"recipient_new_balance,omitempty"`
}

func failed(msg string) []transferOutcome {
	return []transferOutcome{{Success: false, Message: msg}}
}

// processSimpleTransfer moves DZD from the sender to the recipient. Business
// rule violations return success=false without touching any row.
func (p *Procedures) processSimpleTransfer(_ context.Context, call *Call) (any, error) {
	senderEmail := call.String("p_sender_email")
	ident := call.String("p_recipient_identifier")
	description := call.String("p_description")
	if description == "" {
		description = defaultTransferDescription
	}
	if senderEmail == "" {
		return nil, &ProcError{Code: "22004", Message: "parameter p_sender_email is required"}
	}
	amount, err := call.Decimal("p_amount")
	if err != nil {
		return nil, err
	}

	if !amount.IsPositive() {
		return failed("Transfer amount must be greater than zero"), nil
	}
	if amount.LessThan(p.Limits.Min) {
		return failed(fmt.Sprintf("Minimum transfer amount is %s DZD", p.Limits.Min)), nil
	}
	if amount.GreaterThan(p.Limits.Max) {
		return failed(fmt.Sprintf("Maximum transfer amount is %s DZD", p.Limits.Max)), nil
	}
	if ident == "" {
		return failed("Recipient identifier is required"), nil
	}

	t := call.Tables
	sender, err := userByEmail(t, senderEmail)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return failed("Sender account not found"), nil
	}
	senderID := str(sender, "id")
	if call.Subject != "" && call.Subject != senderID {
		return nil, &ProcError{Status: http.StatusForbidden, Code: "42501", Message: "sender does not match the authenticated user"}
	}

	recipient, err := userByIdentifier(t, ident)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return failed("Recipient not found"), nil
	}
	recipientID := str(recipient, "id")
	if recipientID == senderID {
		return failed("You cannot transfer to your own account"), nil
	}

	senderBal, err := balanceOf(t, senderID)
	if err != nil {
		return nil, err
	}
	if senderBal == nil {
		return failed("Sender balance not found"), nil
	}
	if num(senderBal, "dzd").LessThan(amount) {
		return failed("Insufficient balance"), nil
	}

	lim, err := p.limitsFor(t, senderID)
	if err != nil {
		return nil, err
	}
	if lim.perTransfer.IsPositive() && amount.GreaterThan(lim.perTransfer) {
		return failed(fmt.Sprintf("Amount exceeds your per-transfer limit of %s DZD", lim.perTransfer)), nil
	}
	use, err := usageOf(t, senderID, call.Now)
	if err != nil {
		return nil, err
	}
	if use.dailyTotal.Add(amount).GreaterThan(lim.daily) {
		return failed("Daily transfer limit exceeded"), nil
	}
	if use.monthlyTotal.Add(amount).GreaterThan(lim.monthly) {
		return failed("Monthly transfer limit exceeded"), nil
	}

	recipientBal, err := balanceOf(t, recipientID)
	if err != nil {
		return nil, err
	}
	if recipientBal == nil {
		recipientBal, err = t.Insert(TableBalances, zeroBalance(recipientID))
		if err != nil {
			return nil, err
		}
	}

	todays, err := t.Select(TableInstantTransfers, Where("created_at", OpGte, startOfDay(call.Now)))
	if err != nil {
		return nil, err
	}
	ref := id.FormatReference(call.Now, len(todays)+1)

	senderNew := num(senderBal, "dzd").Sub(amount)
	recipientNew := num(recipientBal, "dzd").Add(amount)

	if _, err := t.Update(TableBalances, Where("user_id", OpEq, senderID), Row{"dzd": senderNew}); err != nil {
		return nil, err
	}
	if _, err := t.Update(TableBalances, Where("user_id", OpEq, recipientID), Row{"dzd": recipientNew}); err != nil {
		return nil, err
	}

	senderName, recipientName := str(sender, "full_name"), str(recipient, "full_name")
	if _, err := t.Insert(TableInstantTransfers, Row{
		"reference_number": ref,
		"sender_id":        senderID,
		"recipient_id":     recipientID,
		"sender_email":     str(sender, "email"),
		"recipient_email":  str(recipient, "email"),
		"sender_name":      senderName,
		"recipient_name":   recipientName,
		"amount":           amount,
		"description":      description,
		"status":           "completed",
		"created_at":       timestamp(call.Now),
	}); err != nil {
		return nil, err
	}

	entries := []Row{
		{
			"user_id":     senderID,
			"type":        "transfer",
			"amount":      amount,
			"currency":    "dzd",
			"description": description,
			"status":      "completed",
			"reference":   ref,
			"recipient":   str(recipient, "email"),
			"created_at":  timestamp(call.Now),
		},
		{
			"user_id":     recipientID,
			"type":        "transfer",
			"amount":      amount,
			"currency":    "dzd",
			"description": "Received from " + displayName(sender),
			"status":      "completed",
			"reference":   ref,
			"recipient":   str(sender, "email"),
			"created_at":  timestamp(call.Now),
		},
	}
	for _, e := range entries {
		if _, err := t.Insert(TableTransactions, e); err != nil {
			return nil, err
		}
	}

	if _, err := t.Insert(TableNotifications, Row{
		"user_id": recipientID,
		"type":    "success",
		"title":   "Transfer received",
		"message": fmt.Sprintf("You received %s DZD from %s", amount.StringFixed(2), displayName(sender)),
		"is_read": false,
	}); err != nil {
		return nil, err
	}

	return []transferOutcome{{
		Success:             true,
		Message:             "Transfer completed successfully",
		ReferenceNumber:     ref,
		SenderNewBalance:    &senderNew,
		RecipientNewBalance: &recipientNew,
	}}, nil
}

type userMatchRow struct {
	Email         string `json:"user_email"`
	Name          string `json:"user_name"`
	AccountNumber string `json:"account_number"`
}

const maxMatches = 10

// findUserSimple matches users by email, name or account-number prefix.
func (p *Procedures) findUserSimple(_ context.Context, call *Call) (any, error) {
	q := call.String("p_identifier")
	out := []userMatchRow{}
	if len([]rune(q)) < 2 {
		return out, nil
	}

	users, err := call.Tables.Select(TableUsers, Filter{}.SortBy("full_name", false))
	if err != nil {
		return nil, err
	}
	lq := strings.ToLower(q)
	for _, u := range users {
		if strings.Contains(strings.ToLower(str(u, "email")), lq) ||
			strings.Contains(strings.ToLower(str(u, "full_name")), lq) ||
			strings.HasPrefix(str(u, "account_number"), q) {
			out = append(out, userMatchRow{
				Email:         str(u, "email"),
				Name:          str(u, "full_name"),
				AccountNumber: str(u, "account_number"),
			})
			if len(out) == maxMatches {
				break
			}
		}
	}
	return out, nil
}

type historyRow struct {
	ReferenceNumber  string          `json:"reference_number"`
	Direction        string          `json:"direction"`
	CounterpartyMail string          `json:"counterparty_email"`
	CounterpartyName string          `json:"counterparty_name"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	CreatedAt        string          `json:"created_at"`
}

const historyLimit = 50

// transferHistory lists the user's sent and received instant transfers,
// newest first.
func (p *Procedures) transferHistory(_ context.Context, call *Call) (any, error) {
	out := []historyRow{}
	user, err := userByEmail(call.Tables, call.String("p_user_email"))
	if err != nil || user == nil {
		return out, err
	}
	uid := str(user, "id")

	sent, err := call.Tables.Select(TableInstantTransfers, Where("sender_id", OpEq, uid))
	if err != nil {
		return nil, err
	}
	received, err := call.Tables.Select(TableInstantTransfers, Where("recipient_id", OpEq, uid))
	if err != nil {
		return nil, err
	}

	for _, r := range sent {
		out = append(out, historyRow{
			ReferenceNumber:  str(r, "reference_number"),
			Direction:        "sent",
			CounterpartyMail: str(r, "recipient_email"),
			CounterpartyName: str(r, "recipient_name"),
			Amount:           num(r, "amount"),
			Description:      str(r, "description"),
			Status:           str(r, "status"),
			CreatedAt:        str(r, "created_at"),
		})
	}
	for _, r := range received {
		out = append(out, historyRow{
			ReferenceNumber:  str(r, "reference_number"),
			Direction:        "received",
			CounterpartyMail: str(r, "sender_email"),
			CounterpartyName: str(r, "sender_name"),
			Amount:           num(r, "amount"),
			Description:      str(r, "description"),
			Status:           str(r, "status"),
			CreatedAt:        str(r, "created_at"),
		})
	}

	sortHistory(out)
	if len(out) > historyLimit {
		out = out[:historyLimit]
	}
	return out, nil
}

func sortHistory(rows []historyRow) {
	slices.SortStableFunc(rows, func(a, b historyRow) int {
		return compare(b.CreatedAt, a.CreatedAt)
	})
}

type userLimits struct {
	daily       decimal.Decimal
	monthly     decimal.Decimal
	perTransfer decimal.Decimal
}

// limitsFor returns the user's override row from transfer_limits, falling
// back to the server defaults for missing columns.
func (p *Procedures) limitsFor(t Tables, userID string) (userLimits, error) {
	lim := userLimits{daily: p.Limits.Daily, monthly: p.Limits.Monthly, perTransfer: p.Limits.Max}
	rows, err := t.Select(TableTransferLimits, Where("user_id", OpEq, userID))
	if err != nil || len(rows) == 0 {
		return lim, err
	}
	r := rows[0]
	if d := num(r, "daily_limit"); d.IsPositive() {
		lim.daily = d
	}
	if d := num(r, "monthly_limit"); d.IsPositive() {
		lim.monthly = d
	}
	if d := num(r, "per_transfer_limit"); d.IsPositive() {
		lim.perTransfer = d
	}
	return lim, nil
}

type usage struct {
	dailyCount   int
	dailyTotal   decimal.Decimal
	monthlyCount int
	monthlyTotal decimal.Decimal
}

func usageOf(t Tables, userID string, now time.Time) (usage, error) {
	rows, err := t.Select(TableInstantTransfers,
		Where("sender_id", OpEq, userID).And("created_at", OpGte, startOfMonth(now)))
	if err != nil {
		return usage{}, err
	}
	dayStart := startOfDay(now)
	var u usage
	for _, r := range rows {
		amt := num(r, "amount")
		u.monthlyCount++
		u.monthlyTotal = u.monthlyTotal.Add(amt)
		if compare(str(r, "created_at"), dayStart) >= 0 {
			u.dailyCount++
			u.dailyTotal = u.dailyTotal.Add(amt)
		}
	}
	return u, nil
}

type statsRow struct {
	DailyCount       int             `json:"daily_count"`
	DailyTotal       decimal.Decimal `json:"daily_total"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyCount     int             `json:"monthly_count"`
	MonthlyTotal     decimal.Decimal `json:"monthly_total"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
}

func (p *Procedures) transferStats(_ context.Context, call *Call) (any, error) {
	uid := call.String("p_user_id")
	lim, err := p.limitsFor(call.Tables, uid)
	if err != nil {
		return nil, err
	}
	u, err := usageOf(call.Tables, uid, call.Now)
	if err != nil {
		return nil, err
	}
	return []statsRow{{
		DailyCount:       u.dailyCount,
		DailyTotal:       u.dailyTotal,
		DailyLimit:       lim.daily,
		DailyRemaining:   nonNegative(lim.daily.Sub(u.dailyTotal)),
		MonthlyCount:     u.monthlyCount,
		MonthlyTotal:     u.monthlyTotal,
		MonthlyLimit:     lim.monthly,
		MonthlyRemaining: nonNegative(lim.monthly.Sub(u.monthlyTotal)),
	}}, nil
}

type limitCheckRow struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
}

func (p *Procedures) checkLimits(_ context.Context, call *Call) (any, error) {
	uid := call.String("p_user_id")
	amount, err := call.Decimal("p_amount")
	if err != nil {
		return nil, err
	}
	lim, err := p.limitsFor(call.Tables, uid)
	if err != nil {
		return nil, err
	}
	u, err := usageOf(call.Tables, uid, call.Now)
	if err != nil {
		return nil, err
	}

	row := limitCheckRow{
		Allowed:          true,
		DailyRemaining:   nonNegative(lim.daily.Sub(u.dailyTotal)),
		MonthlyRemaining: nonNegative(lim.monthly.Sub(u.monthlyTotal)),
	}
	switch {
	case amount.LessThan(p.Limits.Min):
		row.Allowed, row.Reason = false, fmt.Sprintf("Minimum transfer amount is %s DZD", p.Limits.Min)
	case amount.GreaterThan(lim.perTransfer):
		row.Allowed, row.Reason = false, fmt.Sprintf("Maximum transfer amount is %s DZD", lim.perTransfer)
	case amount.GreaterThan(row.DailyRemaining):
		row.Allowed, row.Reason = false, "Daily transfer limit exceeded"
	case amount.GreaterThan(row.MonthlyRemaining):
		row.Allowed, row.Reason = false, "Monthly transfer limit exceeded"
	}
	return []limitCheckRow{row}, nil
}

func zeroBalance(userID string) Row {
	return Row{
		"user_id":            userID,
		"dzd":                decimal.Zero,
		"eur":                decimal.Zero,
		"usd":                decimal.Zero,
		"gbp":                decimal.Zero,
		"investment_balance": decimal.Zero,
	}
}

func displayName(user Row) string {
	if n := str(user, "full_name"); n != "" {
		return n
	}
	return str(user, "email")
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func startOfDay(t time.Time) string {
	t = t.UTC()
	return timestamp(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func startOfMonth(t time.Time) string {
	t = t.UTC()
	return timestamp(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC))
}
