// Package ops holds the built-in tool operations the concierge ships with.
// Each operation binds a schema to a handler over the expense store;
// deployments register their own alongside these.
package ops

import (
	"context"
	"strings"

	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/internal/schema"
	"github.com/voyagerhq/concierge/store"
	"github.com/voyagerhq/concierge/tool"
)

// Expense categories accepted by create_expense.
var expenseCategories = []string{"food", "transport", "lodging", "activities", "other"}

// RegisterBuiltins adds the stock operations to a registry.
func RegisterBuiltins(reg *tool.Registry, expenses store.ExpenseStore) error {
	if err := reg.Register(createExpense(expenses)); err != nil {
		return err
	}
	if err := reg.Register(tripSummary(expenses)); err != nil {
		return err
	}
	return reg.Register(convertCurrency())
}

func createExpense(expenses store.ExpenseStore) tool.Operation {
	return tool.Operation{
		Name:        "create_expense",
		Description: "Record a travel expense for the current user. Amounts are positive, in the given currency.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{
					"type":        "number",
					"description": "Expense amount, must be positive",
					"minimum":     0.01,
				},
				"currency": map[string]any{
					"type":        "string",
					"description": "ISO 4217 currency code",
					"minLength":   3,
					"maxLength":   3,
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Expense category",
					"enum":        expenseCategories,
				},
				"note": map[string]any{
					"type":        "string",
					"description": "Optional free-form note",
					"maxLength":   200,
				},
			},
			"required": []string{"amount", "currency", "category"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (any, error) {
			expense := &store.Expense{
				UserID:   userID,
				Amount:   args["amount"].(float64),
				Currency: args["currency"].(string),
				Category: args["category"].(string),
			}
			if note, ok := args["note"].(string); ok {
				expense.Note = note
			}
			if err := expenses.CreateExpense(ctx, expense); err != nil {
				return nil, err
			}
			return map[string]any{
				"expense_id": expense.ID,
				"amount":     expense.Amount,
				"currency":   expense.Currency,
				"category":   expense.Category,
			}, nil
		},
	}
}

func tripSummary(expenses store.ExpenseStore) tool.Operation {
	return tool.Operation{
		Name:        "get_trip_summary",
		Description: "Summarize the current user's recorded expenses: total and per-category breakdown.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (any, error) {
			all, err := expenses.ListExpenses(ctx, userID)
			if err != nil {
				return nil, err
			}
			var total float64
			byCategory := map[string]float64{}
			currency := ""
			for _, e := range all {
				total += e.Amount
				byCategory[e.Category] += e.Amount
				if currency == "" {
					currency = e.Currency
				} else if currency != e.Currency {
					currency = "mixed"
				}
			}
			return map[string]any{
				"count":       len(all),
				"total":       round2(total),
				"currency":    currency,
				"by_category": byCategory,
			}, nil
		},
	}
}

// convertArgs is the argument shape for convert_currency; its schema is
// derived from the struct tags.
type convertArgs struct {
	Amount float64 `json:"amount" description:"Amount to convert" minimum:"0.01"`
	From   string  `json:"from" description:"Source ISO 4217 currency code" minLength:"3" maxLength:"3"`
	To     string  `json:"to" description:"Target ISO 4217 currency code" minLength:"3" maxLength:"3"`
}

// Indicative EUR-based rates for offline estimates; a production deployment
// swaps in a rates provider.
var eurRates = map[string]float64{
	"EUR": 1.0,
	"USD": 1.08,
	"GBP": 0.85,
	"JPY": 162.0,
	"CHF": 0.94,
}

func convertCurrency() tool.Operation {
	return tool.Operation{
		Name:        "convert_currency",
		Description: "Convert an amount between major currencies using indicative rates. Estimates only.",
		InputSchema: schema.FromStruct(convertArgs{}),
		Handler: func(ctx context.Context, userID string, args map[string]any) (any, error) {
			amount := args["amount"].(float64)
			from := strings.ToUpper(args["from"].(string))
			to := strings.ToUpper(args["to"].(string))

			fromRate, ok := eurRates[from]
			if !ok {
				return nil, core.NewError(core.KindOperation, "unsupported currency", "currency", from)
			}
			toRate, ok := eurRates[to]
			if !ok {
				return nil, core.NewError(core.KindOperation, "unsupported currency", "currency", to)
			}
			converted := amount / fromRate * toRate
			return map[string]any{
				"amount":    amount,
				"from":      from,
				"to":        to,
				"converted": round2(converted),
			}, nil
		},
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
