package approval

import "strings"

// bulkPhrases is the closed list of phrasings that flip an operation
// into bulk mode. Substring matching is deliberate: "complete all of
// them please" still triggers.
var bulkPhrases = []string{
	"all tasks",
	"all of them",
	"all my tasks",
	"every task",
	"multiple tasks",
	"many tasks",
	"everything",
	"all the",
	"all events",
	"all my events",
	"every event",
	"all meetings",
	"all my meetings",
	"every meeting",
	"multiple events",
	"many meetings",
}

// bulkOperations are the only operations bulk mode applies to. A query
// like "show me all tasks" is a search, not a bulk mutation.
var bulkOperations = map[string]bool{
	"complete": true,
	"cancel":   true,
	"delete":   true,
	"update":   true,
}

// IsBulkQuery reports whether the query requests a bulk mutation. The
// phrase list is closed: "complete my task" never takes the bulk path.
func IsBulkQuery(query, operation string) bool {
	if !bulkOperations[strings.ToLower(operation)] {
		return false
	}
	q := strings.ToLower(query)
	for _, phrase := range bulkPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}
