// Package transfer implements the instant transfer workflow: the amount and
// recipient form, the debounced recipient search, and the step machine that
// confirms and executes one transfer.
package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Step is a screen of the transfer workflow.
type Step int

const (
	StepForm Step = iota + 1
	StepConfirm
	StepProcessing
	StepSuccess
)

func (s Step) String() string {
	switch s {
	case StepForm:
		return "form"
	case StepConfirm:
		return "confirm"
	case StepProcessing:
		return "processing"
	case StepSuccess:
		return "success"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Limits bound a single transfer, in DZD.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultLimits returns the stock bounds: 100 to 100000 DZD.
func DefaultLimits() Limits {
	return Limits{Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(100000)}
}

// Form is what the user typed. Amount is kept as text until validation.
type Form struct {
	Amount      string
	Recipient   string
	Description string
}

var (
	ErrMissingFields       = errors.New("please enter all required fields")
	ErrInvalidAmount       = errors.New("please enter a valid amount")
	ErrUnknownBalance      = errors.New("the current balance could not be determined")
	ErrInsufficientBalance = errors.New("insufficient balance for this transfer")
	ErrBelowMinimum        = errors.New("amount is below the minimum transfer")
	ErrAboveMaximum        = errors.New("amount is above the maximum transfer")
)

// BoundError reports an amount outside Limits. It matches ErrBelowMinimum or
// ErrAboveMaximum with errors.Is.
type BoundError struct {
	Kind  error
	Limit decimal.Decimal
}

func (e *BoundError) Error() string {
	if e.Kind == ErrAboveMaximum {
		return fmt.Sprintf("maximum transfer amount is %s DZD", e.Limit.String())
	}
	return fmt.Sprintf("minimum transfer amount is %s DZD", e.Limit.String())
}

func (e *BoundError) Unwrap() error { return e.Kind }

// ParseAmount reads a positive DZD amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// Validate checks f against the available DZD balance (nil when unknown) and
// the limits, and returns the parsed amount. Checks run in a fixed order so
// the first failing rule decides the message.
func Validate(f Form, balance *decimal.Decimal, limits Limits) (decimal.Decimal, error) {
	if strings.TrimSpace(f.Amount) == "" || strings.TrimSpace(f.Recipient) == "" {
		return decimal.Decimal{}, ErrMissingFields
	}
	amount, err := ParseAmount(f.Amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if balance == nil {
		return decimal.Decimal{}, ErrUnknownBalance
	}
	if amount.GreaterThan(*balance) {
		return decimal.Decimal{}, ErrInsufficientBalance
	}
	if amount.LessThan(limits.Min) {
		return decimal.Decimal{}, &BoundError{Kind: ErrBelowMinimum, Limit: limits.Min}
	}
	if !limits.Max.IsZero() && amount.GreaterThan(limits.Max) {
		return decimal.Decimal{}, &BoundError{Kind: ErrAboveMaximum, Limit: limits.Max}
	}
	return amount, nil
}

// CanProceed reports whether Next would leave the form.
func CanProceed(f Form, balance *decimal.Decimal, limits Limits) bool {
	_, err := Validate(f, balance, limits)
	return err == nil
}

// UserMessage returns the text to show for err: the error's own UserMessage
// when it has one, otherwise its Error string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "an unexpected error occurred during the transfer"
}
