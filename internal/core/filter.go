package core

import "strings"

// CategoryAll disables category filtering.
const CategoryAll = "All"

// Filter selects transactions for the ledger view.
type Filter struct {
	Category string
	Search   string
}

// FilterTransactions keeps the transactions matching f, preserving order.
// Search is a case-insensitive substring match on the description.
func FilterTransactions(txns []Transaction, f Filter) []Transaction {
	category := strings.TrimSpace(f.Category)
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		if category != "" && !strings.EqualFold(category, CategoryAll) && !strings.EqualFold(category, string(t.Category)) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}
