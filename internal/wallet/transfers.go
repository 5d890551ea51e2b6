package wallet

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/model"
)

// MinSearchLength is the shortest query sent to the user search procedure.
const MinSearchLength = 2

// TransferRequest is the input of the instant transfer procedure.
type TransferRequest struct {
	SenderEmail string
	Recipient   string // email or account number
	Amount      decimal.Decimal
	Description string
}

// TransferOutcome is the raw answer of the instant transfer procedure.
type TransferOutcome struct {
	Success             bool             `json:"success"`
	Message             string           `json:"message"`
	ReferenceNumber     string           `json:"reference_number"`
	SenderNewBalance    *decimal.Decimal `json:"sender_new_balance"`
	RecipientNewBalance *decimal.Decimal `json:"recipient_new_balance"`
}

// TransferError is a transfer the backend refused. Message is shown to the
// user verbatim.
type TransferError struct {
	Message string
}

func (e *TransferError) Error() string {
	return e.Message
}

// UserMessage returns the server message unchanged.
func (e *TransferError) UserMessage() string {
	return e.Message
}

// Transfer calls the atomic transfer procedure. A success=false answer is
// returned as the outcome, not as an error.
func (a *API) Transfer(ctx context.Context, req TransferRequest) (TransferOutcome, error) {
	return first[TransferOutcome](ctx, a.client, "process_simple_transfer", map[string]any{
		"p_sender_email":         req.SenderEmail,
		"p_recipient_identifier": strings.TrimSpace(req.Recipient),
		"p_amount":               req.Amount,
		"p_description":          req.Description,
	})
}

type userMatchRow struct {
	Email         string `json:"user_email"`
	Name          string `json:"user_name"`
	AccountNumber string `json:"account_number"`
}

// SearchUsers finds candidate recipients. Queries shorter than
// MinSearchLength runes return no matches without calling the backend.
func (a *API) SearchUsers(ctx context.Context, query string) ([]model.UserMatch, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return nil, nil
	}
	var rows []userMatchRow
	if err := a.client.RPC(ctx, "find_user_simple", map[string]any{"p_identifier": query}, &rows); err != nil {
		return nil, err
	}
	out := make([]model.UserMatch, len(rows))
	for i, r := range rows {
		out[i] = model.UserMatch{Email: r.Email, FullName: r.Name, AccountNumber: r.AccountNumber}
	}
	return out, nil
}

// TransferHistory returns the user's sent and received instant transfers.
func (a *API) TransferHistory(ctx context.Context, email string) ([]model.TransferRecord, error) {
	var out []model.TransferRecord
	err := a.client.RPC(ctx, "get_transfer_history_simple", map[string]any{"p_user_email": email}, &out)
	return out, err
}

// TransferStats returns the user's usage against the transfer limits.
func (a *API) TransferStats(ctx context.Context, userID string) (model.TransferStats, error) {
	return first[model.TransferStats](ctx, a.client, "get_instant_transfer_stats", map[string]any{"p_user_id": userID})
}

// CheckTransferLimits asks whether amount fits the user's remaining limits.
func (a *API) CheckTransferLimits(ctx context.Context, userID string, amount decimal.Decimal) (model.LimitCheck, error) {
	return first[model.LimitCheck](ctx, a.client, "check_instant_transfer_limits", map[string]any{
		"p_user_id": userID,
		"p_amount":  amount,
	})
}

// UserBalanceByIdentifier looks up a balance by email or account number. It
// returns nil when no user matches.
func (a *API) UserBalanceByIdentifier(ctx context.Context, identifier string) (*model.IdentifiedBalance, error) {
	var rows []model.IdentifiedBalance
	if err := a.client.RPC(ctx, "get_user_balance_simple", map[string]any{"p_identifier": identifier}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SetUserBalanceByIdentifier replaces the DZD balance of the identified user.
func (a *API) SetUserBalanceByIdentifier(ctx context.Context, identifier string, dzd decimal.Decimal) (*model.IdentifiedBalance, error) {
	var rows []model.IdentifiedBalance
	if err := a.client.RPC(ctx, "update_user_balance_simple", map[string]any{
		"p_identifier":  identifier,
		"p_new_balance": dzd,
	}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
