package ledger

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/model"
)

// Totals is a count and sum of transaction amounts.
type Totals struct {
	Count int
	Sum   decimal.Decimal
}

func (t *Totals) add(amount decimal.Decimal) {
	t.Count++
	t.Sum = t.Sum.Add(amount)
}

// Summary aggregates completed transactions per currency and per type.
// Pending and failed transactions are only counted in Skipped.
type Summary struct {
	ByCurrency map[model.Currency]Totals
	ByType     map[model.TransactionType]Totals
	Skipped    int
}

// Summarize aggregates txs.
func Summarize(txs []model.Transaction) Summary {
	s := Summary{
		ByCurrency: map[model.Currency]Totals{},
		ByType:     map[model.TransactionType]Totals{},
	}
	for _, tx := range txs {
		if tx.Status != model.StatusCompleted {
			s.Skipped++
			continue
		}
		c := s.ByCurrency[tx.Currency]
		c.add(tx.Amount)
		s.ByCurrency[tx.Currency] = c

		ty := s.ByType[tx.Type]
		ty.add(tx.Amount)
		s.ByType[tx.Type] = ty
	}
	return s
}

// Currencies returns the summarized currencies in display order.
func (s Summary) Currencies() []model.Currency {
	var out []model.Currency
	for _, c := range model.Currencies {
		if _, ok := s.ByCurrency[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Types returns the summarized transaction types sorted by name.
func (s Summary) Types() []model.TransactionType {
	out := make([]model.TransactionType, 0, len(s.ByType))
	for t := range s.ByType {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
