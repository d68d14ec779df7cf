// Package connectors performs authenticated CalDAV requests against remote
// servers. The sync engine depends only on the Client interface; the HTTP
// implementation lives in caldav.go.
package connectors

import (
	"context"

	"caldavtasks/ical"
	"caldavtasks/store"
)

// PutResult carries the server's response to a create or update: the
// resource location and its new version token.
type PutResult struct {
	Href string
	Etag string
}

// TaskRef identifies a remote resource for deletion.
type TaskRef struct {
	Href string
}

// Client is the transport contract consumed by the sync engine. One logical
// connection exists per account, keyed by account id. Implementations own
// timeouts; the engine does not.
type Client interface {
	// IsConnected reports whether a live connection exists for the account.
	IsConnected(accountID string) bool

	// Reconnect establishes (or re-establishes) the account's connection.
	Reconnect(ctx context.Context, account store.Account) error

	// FetchCalendars lists the account's VTODO-capable collections.
	FetchCalendars(ctx context.Context, accountID string) ([]store.Calendar, error)

	// FetchTasks retrieves all tasks in a calendar. Results carry uid,
	// etag and the raw CATEGORIES string; tag resolution happens later.
	FetchTasks(ctx context.Context, accountID string, cal store.Calendar) ([]ical.ParsedTodo, error)

	// CreateTask uploads a new task and returns its href and etag. A nil
	// result with nil error means the server accepted the write but
	// returned no usable location.
	CreateTask(ctx context.Context, accountID string, cal store.Calendar, task store.Task, tagNames []string) (*PutResult, error)

	// UpdateTask uploads an existing task to its href, carrying the
	// current etag for optimistic concurrency.
	UpdateTask(ctx context.Context, accountID string, task store.Task, tagNames []string) (*PutResult, error)

	// DeleteTask removes a remote resource. Already-gone resources count
	// as success.
	DeleteTask(ctx context.Context, accountID string, ref TaskRef) (bool, error)
}
