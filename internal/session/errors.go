package session

import (
	"context"

	"askweb/internal/backend"
	"askweb/internal/credit"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyQuery rejects blank input before any side effect.
	ErrEmptyQuery = errors.New("please enter a search query")
	// ErrAuthRequired is returned when login is required and nobody is signed in.
	ErrAuthRequired = errors.New("please login to use the search feature")
	// ErrRecordNotFound is returned for ids that are not in the history.
	ErrRecordNotFound = errors.New("search not found in history")
	// ErrNoContext is returned by a follow-up with nothing to follow up on.
	ErrNoContext = errors.New("no previous search to follow up on")
	// ErrSuperseded is returned to a search replaced by a newer submission.
	ErrSuperseded = errors.New("search superseded by a newer one")
	// ErrCancelled is returned to a search stopped by Cancel.
	ErrCancelled = errors.New("search cancelled")
	// ErrTimeout is returned when the configured request timeout elapsed.
	ErrTimeout = errors.New("search timed out")
)

// CreditDeniedError is returned when the credit gate refuses a search.
type CreditDeniedError struct {
	Reason  credit.Reason
	Balance int
}

func (e *CreditDeniedError) Error() string {
	if e.Reason == credit.NoCreditsRemaining {
		return "You have no credits left. Please purchase more credits."
	}
	return "could not deduct a credit, please try again"
}

// UserMessage is the text shown in the conversation for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return backendErr.Message
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled.Error()
	}
	return err.Error()
}
