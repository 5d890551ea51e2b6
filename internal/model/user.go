package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile is a row in the users table.
type Profile struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	FullName         string          `json:"full_name"`
	Phone            string          `json:"phone,omitempty"`
	Username         string          `json:"username,omitempty"`
	Address          string          `json:"address,omitempty"`
	AccountNumber    string          `json:"account_number"`
	ReferralCode     string          `json:"referral_code,omitempty"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	CreatedAt        time.Time       `json:"created_at,omitzero"`
	UpdatedAt        time.Time       `json:"updated_at,omitzero"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are not sent.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Username *string `json:"username,omitempty"`
	Address  *string `json:"address,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Phone == nil && u.Username == nil && u.Address == nil
}
