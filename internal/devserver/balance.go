package devserver

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

var balanceColumns = []string{"dzd", "eur", "usd", "gbp", "investment_balance"}

// ownedBy rejects calls whose token subject is not userID.
func ownedBy(call *Call, userID string) error {
	if call.Subject != "" && call.Subject != userID {
		return &ProcError{Status: http.StatusForbidden, Code: "42501", Message: "balance does not belong to the authenticated user"}
	}
	return nil
}

// updateUserBalance replaces the supplied balance columns. Null parameters
// keep the stored value; a missing row is created first.
func (p *Procedures) updateUserBalance(_ context.Context, call *Call) (any, error) {
	uid := call.String("p_user_id")
	if uid == "" {
		return nil, &ProcError{Code: "22004", Message: "parameter p_user_id is required"}
	}
	if err := ownedBy(call, uid); err != nil {
		return nil, err
	}

	patch := Row{}
	for _, col := range balanceColumns {
		v, err := call.OptionalDecimal("p_" + col)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if v.IsNegative() {
			return nil, &ProcError{Code: "23514", Message: col + " balance cannot be negative"}
		}
		patch[col] = *v
	}

	t := call.Tables
	bal, err := balanceOf(t, uid)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		if _, err := t.Insert(TableBalances, zeroBalance(uid)); err != nil {
			return nil, err
		}
	}
	rows, err := t.Update(TableBalances, Where("user_id", OpEq, uid), patch)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type investmentOutcome struct {
	Success              bool             `json:"success"`
	Message              string           `json:"message"`
	NewDZDBalance        *decimal.Decimal `json:"new_dzd_balance,omitempty"`
	NewInvestmentBalance *decimal.Decimal `json:"new_investment_balance,omitempty"`
}

// processInvestment moves DZD into the investment balance ("invest") or
// back out of it ("return").
func (p *Procedures) processInvestment(_ context.Context, call *Call) (any, error) {
	uid := call.String("p_user_id")
	if err := ownedBy(call, uid); err != nil {
		return nil, err
	}
	amount, err := call.Decimal("p_amount")
	if err != nil {
		return nil, err
	}
	fail := func(msg string) []investmentOutcome {
		return []investmentOutcome{{Success: false, Message: msg}}
	}
	if !amount.IsPositive() {
		return fail("Amount must be greater than zero"), nil
	}

	bal, err := balanceOf(call.Tables, uid)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return fail("Balance not found"), nil
	}
	dzd, invested := num(bal, "dzd"), num(bal, "investment_balance")

	switch op := call.String("p_operation"); op {
	case "invest":
		if dzd.LessThan(amount) {
			return fail("Insufficient balance"), nil
		}
		dzd, invested = dzd.Sub(amount), invested.Add(amount)
	case "return":
		if invested.LessThan(amount) {
			return fail("Insufficient investment balance"), nil
		}
		dzd, invested = dzd.Add(amount), invested.Sub(amount)
	default:
		return fail("Unknown operation: " + op), nil
	}

	if _, err := call.Tables.Update(TableBalances, Where("user_id", OpEq, uid),
		Row{"dzd": dzd, "investment_balance": invested}); err != nil {
		return nil, err
	}
	return []investmentOutcome{{
		Success:              true,
		Message:              "Investment processed",
		NewDZDBalance:        &dzd,
		NewInvestmentBalance: &invested,
	}}, nil
}

type identifiedBalanceRow struct {
	Email string          `json:"user_email"`
	DZD   decimal.Decimal `json:"dzd"`
	EUR   decimal.Decimal `json:"eur"`
	USD   decimal.Decimal `json:"usd"`
	GBP   decimal.Decimal `json:"gbp"`
}

func (p *Procedures) userBalanceSimple(_ context.Context, call *Call) (any, error) {
	out := []identifiedBalanceRow{}
	user, err := userByIdentifier(call.Tables, call.String("p_identifier"))
	if err != nil || user == nil {
		return out, err
	}
	if err := ownedBy(call, str(user, "id")); err != nil {
		return nil, err
	}
	bal, err := balanceOf(call.Tables, str(user, "id"))
	if err != nil || bal == nil {
		return out, err
	}
	return append(out, identifiedBalanceRow{
		Email: str(user, "email"),
		DZD:   num(bal, "dzd"),
		EUR:   num(bal, "eur"),
		USD:   num(bal, "usd"),
		GBP:   num(bal, "gbp"),
	}), nil
}

type dzdBalanceRow struct {
	Email string          `json:"user_email"`
	DZD   decimal.Decimal `json:"dzd"`
}

// updateUserBalanceSimple sets the DZD balance of the identified user.
func (p *Procedures) updateUserBalanceSimple(_ context.Context, call *Call) (any, error) {
	amount, err := call.Decimal("p_new_balance")
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, &ProcError{Code: "23514", Message: "dzd balance cannot be negative"}
	}
	out := []dzdBalanceRow{}
	user, err := userByIdentifier(call.Tables, call.String("p_identifier"))
	if err != nil || user == nil {
		return out, err
	}
	uid := str(user, "id")
	if err := ownedBy(call, uid); err != nil {
		return nil, err
	}
	if bal, err := balanceOf(call.Tables, uid); err != nil {
		return nil, err
	} else if bal == nil {
		if _, err := call.Tables.Insert(TableBalances, zeroBalance(uid)); err != nil {
			return nil, err
		}
	}
	if _, err := call.Tables.Update(TableBalances, Where("user_id", OpEq, uid), Row{"dzd": amount}); err != nil {
		return nil, err
	}
	return append(out, dzdBalanceRow{Email: str(user, "email"), DZD: amount}), nil
}
