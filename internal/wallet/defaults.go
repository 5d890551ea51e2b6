package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/id"
	"github.com/dinarwallet/wallet/internal/model"
)

// DefaultBalance is the balance provisioned for a user who has none.
func DefaultBalance(userID string) model.Balance {
	return model.Balance{
		UserID:            userID,
		DZD:               decimal.NewFromInt(15000),
		EUR:               decimal.NewFromInt(75),
		USD:               decimal.NewFromInt(85),
		GBP:               decimal.RequireFromString("65.5"),
		InvestmentBalance: decimal.Zero,
	}
}

// DefaultCards returns the solid and virtual cards provisioned for a user who
// has no cards, each with a fresh card number.
func DefaultCards(userID string) ([]model.Card, error) {
	specs := []struct {
		typ   model.CardType
		limit int64
	}{
		{model.CardSolid, 100000},
		{model.CardVirtual, 50000},
	}
	cards := make([]model.Card, 0, len(specs))
	for _, s := range specs {
		number, err := id.NewCardNumber(nil)
		if err != nil {
			return nil, err
		}
		cards = append(cards, model.Card{
			UserID:        userID,
			CardNumber:    number,
			CardType:      s.typ,
			SpendingLimit: decimal.NewFromInt(s.limit),
		})
	}
	return cards, nil
}
