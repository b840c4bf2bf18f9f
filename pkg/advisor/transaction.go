package advisor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

var requiredColumns = []string{"date", "amount", "category", "type"}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
}

type Transaction struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Type     TransactionType `json:"type"`
}

// ValidationError is returned for input the user can fix. Row is the 1-based
// line number in the file (the header is row 1), or zero when the problem is
// not tied to a row.
type ValidationError struct {
	Row int
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(row int, format string, args ...any) *ValidationError {
	return &ValidationError{Row: row, Msg: fmt.Sprintf(format, args...)}
}

// ParseTransactions reads a CSV transaction export with a header row naming
// at least the date, amount, category and type columns.
func ParseTransactions(r io.Reader) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid(0, "CSV file is empty")
	}
	if err != nil {
		return nil, invalid(0, "CSV parsing error: %v", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, exists := columns[name]; !exists {
			columns[name] = i
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, invalid(0, "CSV parsing error: %v", err)
	}
	if len(records) == 0 {
		return nil, invalid(0, "CSV file is empty")
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, invalid(0, "Missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		i := columns[name]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	txs := make([]Transaction, 0, len(records))
	for i, record := range records {
		row := i + 2

		rawDate := field(record, "date")
		date, ok := parseDate(rawDate)
		if !ok {
			return nil, invalid(row, "Invalid date format at row %d: %s. Use YYYY-MM-DD format.", row, rawDate)
		}

		rawAmount := field(record, "amount")
		amount, err := decimal.NewFromString(strings.TrimSpace(rawAmount))
		if err != nil || !amount.IsPositive() {
			return nil, invalid(row, "Invalid amount at row %d: %s. Amount must be a positive number.", row, rawAmount)
		}

		rawType := field(record, "type")
		txType := TransactionType(strings.ToLower(strings.TrimSpace(rawType)))
		if txType != Income && txType != Expense {
			return nil, invalid(row, "Invalid type at row %d: %q. Must be either 'income' or 'expense'.", row, rawType)
		}

		rawCategory := field(record, "category")
		category := strings.TrimSpace(rawCategory)
		if category == "" {
			return nil, invalid(row, "Invalid category at row %d: %q. Category cannot be empty.", row, rawCategory)
		}

		txs = append(txs, Transaction{
			Date:     date,
			Amount:   amount,
			Category: category,
			Type:     txType,
		})
	}
	return txs, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}
