package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification is a row in the notifications table.
type Notification struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"` // success, info, warning, error
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Referral is a row in the referrals table.
type Referral struct {
	ID           string          `json:"id,omitempty"`
	ReferrerID   string          `json:"referrer_id"`
	ReferredID   string          `json:"referred_id"`
	ReferralCode string          `json:"referral_code"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at,omitzero"`
	ReferredUser *ReferredUser   `json:"referred_user,omitempty"`
}

// ReferredUser is the summary of the invited user attached to a referral.
type ReferredUser struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// ReferralStats aggregates a referrer's program activity.
type ReferralStats struct {
	TotalReferrals     int
	CompletedReferrals int
	ThisMonthReferrals int
	PendingRewards     int
	TotalEarnings      decimal.Decimal
}
