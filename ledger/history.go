package ledger

import "sort"

// HistoryItem is a rendered journal row. Consecutive identical operations
// are folded into one item whose RepeatCount is their combined count.
type HistoryItem struct {
	At        Timestamp // most recent occurrence
	Operation Operation
}

// History returns up to limit items, newest first. A limit of zero or less
// returns everything. The journal is only read.
//
// Each pass appends its batch in feed order (newest first), so application
// order is not chronological. Entries are ordered by timestamp; entries with
// the same timestamp keep the most recently applied first.
func History(journal []Entry, limit int) []HistoryItem {
	ordered := make([]Entry, len(journal))
	for i, e := range journal {
		ordered[len(journal)-1-i] = e
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.After(ordered[j].At)
	})

	var items []HistoryItem
	for _, e := range ordered {
		count := e.Operation.RepeatCount
		if count < 1 {
			count = 1
		}

		if n := len(items); n > 0 && items[n-1].Operation.SameAs(e.Operation) {
			items[n-1].Operation.RepeatCount += count
			continue
		}
		if limit > 0 && len(items) == limit {
			break
		}

		op := e.Operation
		op.RepeatCount = count
		items = append(items, HistoryItem{At: e.At, Operation: op})
	}
	return items
}
