package session

import (
	"askweb/internal/backend"
	"askweb/internal/history"
)

// ContextSnapshot is what a follow-up sends to ground itself in an earlier
// search. RecordID names the record it was built from and becomes the
// follow-up's parent id.
type ContextSnapshot struct {
	RecordID string           `json:"record_id"`
	Query    string           `json:"query"`
	Summary  string           `json:"summary,omitempty"`
	Sources  []history.Source `json:"sources"`
}

// BuildContext snapshots rec. A record without a summary still yields a
// snapshot; the backend decides what to do with partial context.
func BuildContext(rec history.Record) ContextSnapshot {
	sources := make([]history.Source, len(rec.Sources))
	copy(sources, rec.Sources)

	return ContextSnapshot{
		RecordID: rec.ID,
		Query:    rec.Query,
		Summary:  rec.Summary,
		Sources:  sources,
	}
}

func (c ContextSnapshot) payload() *backend.PreviousContext {
	return &backend.PreviousContext{
		Query:   c.Query,
		Summary: c.Summary,
		Sources: c.Sources,
	}
}
