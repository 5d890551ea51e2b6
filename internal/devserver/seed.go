package devserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/id"
)

// ReferralReward is credited to a referrer when a seeded user names their code.
var ReferralReward = decimal.NewFromInt(500)

// SeedUser describes a user to provision.
type SeedUser struct {
	Email      string
	FullName   string
	Phone      string
	ReferredBy string // referral code of an existing user
}

// SeededUser is a provisioned user.
type SeededUser struct {
	ID            string
	Email         string
	FullName      string
	AccountNumber string
	ReferralCode  string
}

// DemoUsers returns the users created by "wallet dev serve --seed".
func DemoUsers() []SeedUser {
	return []SeedUser{
		{Email: "amina@example.dz", FullName: "Amina Haddad", Phone: "+213550000001"},
		{Email: "yacine@example.dz", FullName: "Yacine Benali", Phone: "+213550000002"},
		{Email: "sara@example.dz", FullName: "Sara Mansouri", Phone: "+213550000003"},
	}
}

func defaultBalance(userID string) Row {
	return Row{
		"user_id":            userID,
		"dzd":                decimal.NewFromInt(15000),
		"eur":                decimal.NewFromInt(75),
		"usd":                decimal.NewFromInt(85),
		"gbp":                decimal.RequireFromString("65.5"),
		"investment_balance": decimal.Zero,
	}
}

// Seed provisions users with a profile, a default balance and, when
// ReferredBy matches an existing code, a completed referral. Users whose
// email already exists are returned unchanged.
func Seed(ctx context.Context, store Store, users []SeedUser) ([]SeededUser, error) {
	var out []SeededUser
	err := store.Write(ctx, func(t Tables) error {
		out = out[:0]
		for _, u := range users {
			s, err := seedOne(t, u)
			if err != nil {
				return fmt.Errorf("seeding %s: %w", u.Email, err)
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func seedOne(t Tables, u SeedUser) (SeededUser, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return SeededUser{}, errors.New("email is required")
	}
	existing, err := userByEmail(t, email)
	if err != nil {
		return SeededUser{}, err
	}
	if existing != nil {
		return seeded(existing), nil
	}

	acct, err := id.NewAccountNumber(nil)
	if err != nil {
		return SeededUser{}, err
	}
	suffix, _ := strconv.Atoi(acct[len(acct)-3:])
	name := u.FullName
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user, err := t.Insert(TableUsers, Row{
		"email":             email,
		"full_name":         name,
		"phone":             u.Phone,
		"username":          strings.SplitN(email, "@", 2)[0],
		"account_number":    acct,
		"referral_code":     id.ReferralCode(name, suffix),
		"referral_earnings": decimal.Zero,
	})
	if err != nil {
		return SeededUser{}, err
	}
	uid := str(user, "id")
	if _, err := t.Insert(TableBalances, defaultBalance(uid)); err != nil {
		return SeededUser{}, err
	}

	if code := strings.TrimSpace(u.ReferredBy); code != "" {
		if err := creditReferrer(t, code, user); err != nil {
			return SeededUser{}, err
		}
	}
	return seeded(user), nil
}

func creditReferrer(t Tables, code string, referred Row) error {
	refs, err := t.Select(TableUsers, Where("referral_code", OpEq, strings.ToUpper(code)))
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("unknown referral code %q", code)
	}
	referrer := refs[0]
	rid := str(referrer, "id")

	if _, err := t.Insert(TableReferrals, Row{
		"referrer_id":   rid,
		"referred_id":   str(referred, "id"),
		"referral_code": str(referrer, "referral_code"),
		"reward_amount": ReferralReward,
		"status":        "completed",
	}); err != nil {
		return err
	}
	if _, err := t.Update(TableUsers, Where("id", OpEq, rid), Row{
		"referral_earnings": num(referrer, "referral_earnings").Add(ReferralReward),
	}); err != nil {
		return err
	}
	bal, err := balanceOf(t, rid)
	if err != nil || bal == nil {
		return err
	}
	_, err = t.Update(TableBalances, Where("user_id", OpEq, rid), Row{
		"dzd": num(bal, "dzd").Add(ReferralReward),
	})
	return err
}

func seeded(r Row) SeededUser {
	return SeededUser{
		ID:            str(r, "id"),
		Email:         str(r, "email"),
		FullName:      str(r, "full_name"),
		AccountNumber: str(r, "account_number"),
		ReferralCode:  str(r, "referral_code"),
	}
}
