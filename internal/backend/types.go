package backend

import "askweb/internal/history"

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query           string           `json:"query"`
	Followup        bool             `json:"followup,omitempty"`
	PreviousContext *PreviousContext `json:"previous_context,omitempty"`
}

// PreviousContext grounds a follow-up. The backend keeps no session state,
// so the full snapshot travels with every follow-up.
type PreviousContext struct {
	Query   string           `json:"query"`
	Summary string           `json:"summary,omitempty"`
	Sources []history.Source `json:"sources"`
}

// SearchResponse is a successful /search reply.
type SearchResponse struct {
	Summary     string           `json:"summary"`
	Sources     []history.Source `json:"sources"`
	QueriesUsed []string         `json:"queries_used"`

	// Top source, duplicated by the backend for simple clients.
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
