package connectors

import "fmt"

// TransportError is a structured error from a CalDAV operation, carrying
// the HTTP status and enough context to log without re-deriving it.
type TransportError struct {
	Operation  string // e.g. "FetchTasks", "DeleteTask"
	StatusCode int    // 0 if not an HTTP-level failure
	Message    string
	AccountID  string
	Href       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports a 404 response.
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized reports a 401 or 403 response.
func (e *TransportError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsConflict reports a 412 precondition failure (etag mismatch).
func (e *TransportError) IsConflict() bool {
	return e.StatusCode == 412
}

// NewTransportError creates a TransportError.
func NewTransportError(operation string, statusCode int, message string) *TransportError {
	return &TransportError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithAccount attaches the account id for context.
func (e *TransportError) WithAccount(accountID string) *TransportError {
	e.AccountID = accountID
	return e
}

// WithHref attaches the affected resource path.
func (e *TransportError) WithHref(href string) *TransportError {
	e.Href = href
	return e
}

// WithError wraps an underlying error.
func (e *TransportError) WithError(err error) *TransportError {
	e.Err = err
	return e
}
