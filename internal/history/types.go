package history

import (
	"time"

	"github.com/google/uuid"
)

// Source is one document the backend drew on for a summary.
type Source struct {
	Link    string `json:"link"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Record is one completed search. Records are immutable once created.
type Record struct {
	ID          string   `json:"id"`
	Query       string   `json:"query"`
	Summary     string   `json:"summary,omitempty"`
	Sources     []Source `json:"sources"`
	QueriesUsed []string `json:"queries_used"`
	Timestamp   int64    `json:"timestamp"` // Unix milliseconds
	IsFollowup  bool     `json:"is_followup"`
	ParentID    string   `json:"parent_id,omitempty"` // lookup key only, may dangle
}

// Time returns the creation time of the record.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// NewID returns a time-ordered identifier. UUIDv7 values generated by one
// process sort in creation order and never repeat.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.NewString()
	}
	return id.String()
}
