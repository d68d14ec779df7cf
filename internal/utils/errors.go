package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// Common error constructors with suggestions

// ErrTaskNotFound creates an error when a task is not found
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no tasks found matching '%s'", searchTerm),
		Suggestion: "Try a different search term or run 'caldavtasks list' to see all tasks",
	}
}

// ErrCalendarNotFound creates an error when a calendar is not found
func ErrCalendarNotFound(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("calendar '%s' not found", name),
		Suggestion: "Run 'caldavtasks calendars' to see available calendars, or 'caldavtasks sync' to refresh them",
	}
}

// ErrNoAccounts creates an error when no accounts are configured
func ErrNoAccounts() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no accounts configured"),
		Suggestion: "Add an account to the accounts section of ~/.config/caldavtasks/config.yaml",
	}
}

// ErrAccountNotFound creates an error when an account is not configured
func ErrAccountNotFound(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("account '%s' not found", name),
		Suggestion: "Run 'caldavtasks accounts' to see configured accounts",
	}
}

// ErrServerOffline creates an error when a server cannot be reached
func ErrServerOffline(accountName, reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "DNS") {
		suggestion = "Check your DNS settings and internet connection"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the server is running and accessible"
	} else if strings.Contains(reason, "timeout") {
		suggestion = "The server may be slow or unreachable. Try again later"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server for account '%s' is unreachable: %s", accountName, reason),
		Suggestion: suggestion,
	}
}

// ErrInvalidPriority creates an error for invalid priority values
func ErrInvalidPriority(value string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority '%s'", value),
		Suggestion: "Priority must be one of: none, low, medium, high",
	}
}

// ErrInvalidDate creates an error for invalid date formats
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date format: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD format (e.g., 2026-01-15)",
	}
}

// ErrCredentialsNotFound creates an error when credentials are not found
func ErrCredentialsNotFound(accountName string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no password found for account '%s'", accountName),
		Suggestion: fmt.Sprintf("Store the password with 'caldavtasks accounts set-password %s'", accountName),
	}
}

// ErrAuthenticationFailed creates an error when authentication fails
func ErrAuthenticationFailed(accountName string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for account '%s'", accountName),
		Suggestion: fmt.Sprintf("Update the stored password with 'caldavtasks accounts set-password %s'", accountName),
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/caldavtasks/config.yaml and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
