package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB is the on-disk snapshot of the store: a plain projection of the full
// state, loaded once at startup and rewritten on mutation. It is not a
// live query surface; the in-memory Store stays the source of truth.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the snapshot database. An empty path
// falls back to the XDG data directory.
func Open(customPath string) (*DB, error) {
	dbPath, err := databasePath(customPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{DB: db, path: dbPath}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// databasePath resolves customPath > $XDG_DATA_HOME > ~/.local/share.
func databasePath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "caldavtasks", "tasks.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "caldavtasks", "tasks.db"), nil
}

func (d *DB) initSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := d.Exec(p); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", p, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			server_url TEXT NOT NULL,
			username TEXT,
			password TEXT,
			server_type TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS calendars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT,
			ctag TEXT,
			sync_token TEXT,
			color TEXT,
			account_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			uid TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER,
			priority INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			start_date INTEGER,
			due_date INTEGER,
			created_at INTEGER,
			modified_at INTEGER,
			subtasks TEXT,
			parent_uid TEXT,
			collapsed INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			account_id TEXT,
			calendar_id TEXT,
			synced INTEGER NOT NULL DEFAULT 0,
			href TEXT,
			etag TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_calendar ON tasks(calendar_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_uid ON tasks(account_id, uid)`,
		`CREATE TABLE IF NOT EXISTS pending_deletions (
			uid TEXT PRIMARY KEY,
			href TEXT NOT NULL,
			account_id TEXT NOT NULL,
			calendar_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}
	for _, stmt := range schema {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// nullString maps "" to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timePtrToNull maps nil and zero times to NULL, otherwise Unix seconds.
func timePtrToNull(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeToNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func nullToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullToTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}

// Save rewrites the snapshot from the store's current state in one
// transaction.
func (d *DB) Save(s *Store) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"accounts", "calendars", "tags", "tasks", "pending_deletions", "app_state"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	for _, a := range s.Accounts() {
		_, err := tx.Exec(`INSERT INTO accounts (id, name, server_url, username, password, server_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.ServerURL, nullString(a.Username), nullString(a.Password), nullString(a.ServerType))
		if err != nil {
			return err
		}
	}

	for _, c := range s.Calendars() {
		_, err := tx.Exec(`INSERT INTO calendars (id, name, url, ctag, sync_token, color, account_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, nullString(c.URL), nullString(c.CTag), nullString(c.SyncToken),
			nullString(c.Color), c.AccountID)
		if err != nil {
			return err
		}
	}

	for _, t := range s.Tags() {
		if _, err := tx.Exec(`INSERT INTO tags (id, name, color) VALUES (?, ?, ?)`,
			t.ID, t.Name, nullString(t.Color)); err != nil {
			return err
		}
	}

	for _, t := range s.Tasks() {
		var subtasks any
		if len(t.Subtasks) > 0 {
			b, err := json.Marshal(t.Subtasks)
			if err != nil {
				return err
			}
			subtasks = string(b)
		}
		_, err := tx.Exec(`INSERT INTO tasks (
				id, uid, title, description, completed, completed_at, priority, tags,
				start_date, due_date, created_at, modified_at, subtasks, parent_uid,
				collapsed, sort_order, account_id, calendar_id, synced, href, etag
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UID, t.Title, nullString(t.Description),
			boolToInt(t.Completed), timePtrToNull(t.CompletedAt), int(t.Priority),
			nullString(strings.Join(t.Tags, ",")),
			timePtrToNull(t.StartDate), timePtrToNull(t.DueDate),
			timeToNull(t.Created), timeToNull(t.Modified),
			subtasks, nullString(t.ParentUID), boolToInt(t.Collapsed), t.SortOrder,
			nullString(t.AccountID), nullString(t.CalendarID),
			boolToInt(t.Synced), nullString(t.Href), nullString(t.Etag))
		if err != nil {
			return err
		}
	}

	for _, p := range s.AllPendingDeletions() {
		_, err := tx.Exec(`INSERT INTO pending_deletions (uid, href, account_id, calendar_id)
			VALUES (?, ?, ?, ?)`, p.UID, p.Href, p.AccountID, p.CalendarID)
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO app_state (key, value) VALUES ('active_calendar', ?)`,
		s.ActiveCalendar()); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO app_state (key, value) VALUES ('active_tag', ?)`,
		s.ActiveTag()); err != nil {
		return err
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Load populates an empty store from the snapshot. No change signals are
// emitted; loading happens before any subscriber is attached.
func (d *DB) Load(s *Store) error {
	rows, err := d.Query(`SELECT id, name, server_url, COALESCE(username, ''),
		COALESCE(password, ''), COALESCE(server_type, '') FROM accounts`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.ServerURL, &a.Username, &a.Password, &a.ServerType); err != nil {
			rows.Close()
			return err
		}
		stored := a
		s.accounts[a.ID] = &stored
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = d.Query(`SELECT id, name, COALESCE(url, ''), COALESCE(ctag, ''),
		COALESCE(sync_token, ''), COALESCE(color, ''), account_id FROM calendars`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c Calendar
		if err := rows.Scan(&c.ID, &c.Name, &c.URL, &c.CTag, &c.SyncToken, &c.Color, &c.AccountID); err != nil {
			rows.Close()
			return err
		}
		stored := c
		s.calendars[c.ID] = &stored
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = d.Query(`SELECT id, name, COALESCE(color, '') FROM tags`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			rows.Close()
			return err
		}
		stored := t
		s.tags[t.ID] = &stored
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = d.Query(`SELECT id, uid, title, COALESCE(description, ''), completed,
		completed_at, priority, COALESCE(tags, ''), start_date, due_date, created_at,
		modified_at, COALESCE(subtasks, ''), COALESCE(parent_uid, ''), collapsed,
		sort_order, COALESCE(account_id, ''), COALESCE(calendar_id, ''), synced,
		COALESCE(href, ''), COALESCE(etag, '') FROM tasks`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			t                              Task
			completed, collapsed, synced   int
			completedAt, startAt, dueAt    sql.NullInt64
			createdAt, modifiedAt          sql.NullInt64
			priority                       int
			tagsCol, subtasksCol           string
		)
		if err := rows.Scan(&t.ID, &t.UID, &t.Title, &t.Description, &completed,
			&completedAt, &priority, &tagsCol, &startAt, &dueAt, &createdAt,
			&modifiedAt, &subtasksCol, &t.ParentUID, &collapsed, &t.SortOrder,
			&t.AccountID, &t.CalendarID, &synced, &t.Href, &t.Etag); err != nil {
			rows.Close()
			return err
		}
		t.Completed = completed == 1
		t.Collapsed = collapsed == 1
		t.Synced = synced == 1
		t.Priority = Priority(priority)
		t.CompletedAt = nullToTimePtr(completedAt)
		t.StartDate = nullToTimePtr(startAt)
		t.DueDate = nullToTimePtr(dueAt)
		t.Created = nullToTime(createdAt)
		t.Modified = nullToTime(modifiedAt)
		if tagsCol != "" {
			t.Tags = strings.Split(tagsCol, ",")
		}
		if subtasksCol != "" {
			// a snapshot we wrote ourselves; ignore a corrupt column
			_ = json.Unmarshal([]byte(subtasksCol), &t.Subtasks)
		}
		stored := t
		s.tasks[t.ID] = &stored
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = d.Query(`SELECT uid, href, account_id, calendar_id FROM pending_deletions`)
	if err != nil {
		return err
	}
	var pending []PendingDeletion
	for rows.Next() {
		var p PendingDeletion
		if err := rows.Scan(&p.UID, &p.Href, &p.AccountID, &p.CalendarID); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, p)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	s.restorePending(pending)

	var active string
	if err := d.QueryRow(`SELECT COALESCE(value, '') FROM app_state WHERE key = 'active_calendar'`).
		Scan(&active); err == nil && active != "" {
		s.activeCalendarID = active
	}
	if err := d.QueryRow(`SELECT COALESCE(value, '') FROM app_state WHERE key = 'active_tag'`).
		Scan(&active); err == nil && active != "" && s.activeCalendarID == "" {
		s.activeTagID = active
	}

	return nil
}

// AutoSave subscribes the snapshot writer to the store's change signal and
// returns the unsubscribe function. Failed writes are reported through
// onError; the in-memory state stays authoritative either way.
func AutoSave(d *DB, s *Store, onError func(error)) func() {
	return s.Subscribe(func() {
		if err := d.Save(s); err != nil && onError != nil {
			onError(err)
		}
	})
}
