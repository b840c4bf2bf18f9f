package advisor

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RecommendedRatios is the target share of spending per budget bucket, in percent.
var RecommendedRatios = map[string]float64{
	"Housing":            30,
	"Transportation":     15,
	"Food":               20,
	"Utilities":          10,
	"Savings/Investment": 20,
	"Others":             5,
}

type Analysis struct {
	// SpendingByCategory sums every transaction per category, income included.
	SpendingByCategory map[string]decimal.Decimal
	Income             decimal.Decimal
	Expenses           decimal.Decimal
	SavingsPotential   decimal.Decimal
	Recommended        map[string]float64
	// Actual is each expense category's share of total expenses, in percent.
	Actual map[string]float64
}

func Analyze(txs []Transaction) Analysis {
	a := Analysis{
		SpendingByCategory: make(map[string]decimal.Decimal),
		Recommended:        make(map[string]float64, len(RecommendedRatios)),
		Actual:             make(map[string]float64),
	}
	for k, v := range RecommendedRatios {
		a.Recommended[k] = v
	}

	expenseByCategory := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		a.SpendingByCategory[tx.Category] = a.SpendingByCategory[tx.Category].Add(tx.Amount)
		switch tx.Type {
		case Income:
			a.Income = a.Income.Add(tx.Amount)
		case Expense:
			a.Expenses = a.Expenses.Add(tx.Amount)
			expenseByCategory[tx.Category] = expenseByCategory[tx.Category].Add(tx.Amount)
		}
	}
	a.SavingsPotential = a.Income.Sub(a.Expenses)

	if a.Expenses.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for category, total := range expenseByCategory {
			a.Actual[category] = total.Div(a.Expenses).Mul(hundred).Round(2).InexactFloat64()
		}
	}
	return a
}

// Categories returns the spending categories in alphabetical order.
func (a Analysis) Categories() []string {
	out := make([]string, 0, len(a.SpendingByCategory))
	for k := range a.SpendingByCategory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
