package store

import (
	"time"
)

// Priority is the local four-bucket task priority. The iCalendar codec maps
// it onto the RFC 5545 0-9 scale (1=highest, 9=lowest).
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// ParsePriority accepts the string form produced by Priority.String.
// Unknown values map to PriorityNone.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	case "low":
		return PriorityLow
	default:
		return PriorityNone
	}
}

// AppleEpoch is 2001-01-01T00:00:00Z as Unix seconds. Apple clients encode
// manual list position as seconds since this date; we seed new sort orders
// from the same space so imported and locally created values interleave.
const AppleEpoch int64 = 978307200

// AppleSortOrder returns the sort-order value for a timestamp expressed as
// seconds since the Apple epoch.
func AppleSortOrder(t time.Time) int64 {
	return t.Unix() - AppleEpoch
}

// Subtask is a legacy flat checklist entry. New hierarchy uses ParentUID on
// Task; subtasks are kept only so existing data round-trips.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task is the store's task entity. ID is the store-internal identifier,
// stable across edits; UID is the CalDAV identifier, stable across servers.
type Task struct {
	ID          string     `json:"id"`
	UID         string     `json:"uid"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"` // tag ids
	StartDate   *time.Time `json:"start_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Created     time.Time  `json:"created"`
	Modified    time.Time  `json:"modified"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
	ParentUID   string     `json:"parent_uid,omitempty"`
	Collapsed   bool       `json:"collapsed,omitempty"`
	SortOrder   int64      `json:"sort_order"`
	AccountID   string     `json:"account_id,omitempty"`
	CalendarID  string     `json:"calendar_id,omitempty"`
	Synced      bool       `json:"synced"`
	Href        string     `json:"href,omitempty"`
	Etag        string     `json:"etag,omitempty"`
}

// HasTag reports whether the task carries the given tag id.
func (t *Task) HasTag(tagID string) bool {
	for _, id := range t.Tags {
		if id == tagID {
			return true
		}
	}
	return false
}

// Calendar is a remote VTODO collection mirrored locally.
type Calendar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CTag      string `json:"ctag,omitempty"`
	SyncToken string `json:"sync_token,omitempty"`
	Color     string `json:"color,omitempty"`
	AccountID string `json:"account_id"`
}

// Equal reports whether two calendars match in every field the sync engine
// reconciles. Used to skip spurious store writes during calendar sync.
func (c Calendar) Equal(other Calendar) bool {
	return c.ID == other.ID &&
		c.Name == other.Name &&
		c.URL == other.URL &&
		c.CTag == other.CTag &&
		c.SyncToken == other.SyncToken &&
		c.Color == other.Color &&
		c.AccountID == other.AccountID
}

// Account holds the connection settings for one CalDAV server.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ServerURL  string `json:"server_url"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"` // opaque; see internal/credentials
	ServerType string `json:"server_type,omitempty"`
}

// Tag maps bidirectionally to the iCalendar CATEGORIES property by name.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// PendingDeletion records a locally deleted task that still exists on the
// server, so the delete can be pushed on the next sync even after an
// offline period.
type PendingDeletion struct {
	UID        string `json:"uid"`
	Href       string `json:"href"`
	AccountID  string `json:"account_id"`
	CalendarID string `json:"calendar_id"`
}
