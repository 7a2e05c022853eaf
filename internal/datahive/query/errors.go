package query

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for query collaborators.
type ErrorCategory string

const (
	// ErrorTimeout indicates an attempt exceeded its deadline
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the collaborator returned an undecodable payload
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates the collaborator is unavailable
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the table or view is not provisioned
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps a query failure with its category.
type Error struct {
	Category   ErrorCategory
	Source     string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("query %s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("query %s [%s]: %s", e.Source, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized error.
func NewError(category ErrorCategory, source, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Source:     source,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the category, classifying bare deadline errors as
// timeouts.
func CategoryOf(err error) ErrorCategory {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}
