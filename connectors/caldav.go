package connectors

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"caldavtasks/ical"
	"caldavtasks/store"
)

// connection is one live per-account handle: the account snapshot, its
// calendar-home URL and a configured HTTP client.
type connection struct {
	account store.Account
	client  *http.Client
	origin  string // scheme://host, for resolving server-absolute hrefs
	homeURL string // calendar home collection, trailing slash
}

// CalDAVClient implements Client over plain CalDAV HTTP verbs
// (PROPFIND/REPORT/PUT/DELETE) with basic auth. Connections are kept per
// account id; Reconnect replaces them.
type CalDAVClient struct {
	mu          sync.RWMutex
	connections map[string]*connection

	// InsecureSkipVerify disables TLS verification for self-signed dev
	// servers only.
	InsecureSkipVerify bool
}

// NewCalDAVClient creates a client with no open connections.
func NewCalDAVClient() *CalDAVClient {
	return &CalDAVClient{connections: make(map[string]*connection)}
}

func (c *CalDAVClient) httpClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify},
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
}

// homeURL derives the calendar-home collection for an account. Nextcloud
// keeps its DAV endpoint under remote.php; other servers are expected to
// point ServerURL at the calendar home directly.
func homeURL(account store.Account) (string, string, error) {
	u, err := url.Parse(account.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid server url %q", account.ServerURL)
	}
	origin := u.Scheme + "://" + u.Host

	home := strings.TrimRight(u.String(), "/") + "/"
	if account.ServerType == "nextcloud" {
		home = fmt.Sprintf("%s/remote.php/dav/calendars/%s/", origin, account.Username)
	}
	return origin, home, nil
}

// IsConnected reports whether a connection handle exists for the account.
func (c *CalDAVClient) IsConnected(accountID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.connections[accountID]
	return ok
}

// Disconnect drops the account's connection handle.
func (c *CalDAVClient) Disconnect(accountID string) {
	c.mu.Lock()
	delete(c.connections, accountID)
	c.mu.Unlock()
}

// Reconnect verifies the account's calendar home with a PROPFIND and stores
// a fresh connection handle on success.
func (c *CalDAVClient) Reconnect(ctx context.Context, account store.Account) error {
	origin, home, err := homeURL(account)
	if err != nil {
		return NewTransportError("Reconnect", 0, err.Error()).WithAccount(account.ID).WithError(err)
	}

	conn := &connection{
		account: account,
		client:  c.httpClient(),
		origin:  origin,
		homeURL: home,
	}

	body := `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop><d:resourcetype /></d:prop>
</d:propfind>`

	resp, err := conn.do(ctx, "PROPFIND", home, body, map[string]string{
		"Content-Type": "application/xml",
		"Depth":        "0",
	})
	if err != nil {
		return NewTransportError("Reconnect", 0, err.Error()).WithAccount(account.ID).WithError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewTransportError("Reconnect", resp.StatusCode, resp.Status).WithAccount(account.ID)
	}

	c.mu.Lock()
	c.connections[account.ID] = conn
	c.mu.Unlock()
	return nil
}

func (c *CalDAVClient) connection(accountID string) (*connection, error) {
	c.mu.RLock()
	conn, ok := c.connections[accountID]
	c.mu.RUnlock()
	if !ok {
		return nil, NewTransportError("Connection", 0, "account not connected").WithAccount(accountID)
	}
	return conn, nil
}

// do issues one authenticated request.
func (conn *connection) do(ctx context.Context, method, target, body string, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(conn.account.Username, conn.account.Password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return conn.client.Do(req)
}

// resolve turns a server-absolute href into a full URL.
func (conn *connection) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return conn.origin + href
}

// FetchCalendars lists the VTODO-capable collections under the calendar
// home.
func (c *CalDAVClient) FetchCalendars(ctx context.Context, accountID string) ([]store.Calendar, error) {
	conn, err := c.connection(accountID)
	if err != nil {
		return nil, err
	}

	body := `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:ic="http://apple.com/ns/ical/">
  <d:prop>
    <d:displayname />
    <cs:getctag />
    <d:sync-token />
    <c:supported-calendar-component-set />
    <ic:calendar-color />
  </d:prop>
</d:propfind>`

	resp, err := conn.do(ctx, "PROPFIND", conn.homeURL, body, map[string]string{
		"Content-Type": "application/xml",
		"Depth":        "1",
	})
	if err != nil {
		return nil, NewTransportError("FetchCalendars", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError("FetchCalendars", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewTransportError("FetchCalendars", resp.StatusCode, resp.Status).WithAccount(accountID)
	}

	return parseCalendarList(string(respBody), accountID), nil
}

// todoQuery is the REPORT body fetching every VTODO with etags.
const todoQuery = `<?xml version="1.0" encoding="utf-8" ?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag />
    <c:calendar-data />
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VTODO" />
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

// FetchTasks retrieves all tasks in a calendar via a calendar-query REPORT.
func (c *CalDAVClient) FetchTasks(ctx context.Context, accountID string, cal store.Calendar) ([]ical.ParsedTodo, error) {
	conn, err := c.connection(accountID)
	if err != nil {
		return nil, err
	}

	calURL := conn.resolve(cal.URL)
	resp, err := conn.do(ctx, "REPORT", calURL, todoQuery, map[string]string{
		"Content-Type": "application/xml",
		"Depth":        "1",
	})
	if err != nil {
		return nil, NewTransportError("FetchTasks", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError("FetchTasks", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewTransportError("FetchTasks", resp.StatusCode, resp.Status).WithAccount(accountID)
	}

	return parseTaskReport(string(respBody), accountID, cal.ID), nil
}

// CreateTask uploads a new task under the calendar collection. The resource
// name is the task uid.
func (c *CalDAVClient) CreateTask(ctx context.Context, accountID string, cal store.Calendar, task store.Task, tagNames []string) (*PutResult, error) {
	conn, err := c.connection(accountID)
	if err != nil {
		return nil, err
	}

	calURL := strings.TrimRight(conn.resolve(cal.URL), "/")
	target := fmt.Sprintf("%s/%s.ics", calURL, url.PathEscape(task.UID))

	resp, err := conn.do(ctx, "PUT", target, ical.TaskToVTodo(task, tagNames), map[string]string{
		"Content-Type":  "text/calendar; charset=utf-8",
		"If-None-Match": "*",
	})
	if err != nil {
		return nil, NewTransportError("CreateTask", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewTransportError("CreateTask", resp.StatusCode, resp.Status).
			WithAccount(accountID).WithHref(target)
	}

	parsed, _ := url.Parse(target)
	href := target
	if parsed != nil {
		href = parsed.Path
	}
	return &PutResult{Href: href, Etag: strings.Trim(resp.Header.Get("ETag"), `"`)}, nil
}

// UpdateTask uploads an existing task to its href, using If-Match for
// optimistic concurrency when an etag is known.
func (c *CalDAVClient) UpdateTask(ctx context.Context, accountID string, task store.Task, tagNames []string) (*PutResult, error) {
	conn, err := c.connection(accountID)
	if err != nil {
		return nil, err
	}
	if task.Href == "" {
		return nil, NewTransportError("UpdateTask", 0, "task has no href").WithAccount(accountID)
	}

	headers := map[string]string{"Content-Type": "text/calendar; charset=utf-8"}
	if task.Etag != "" {
		headers["If-Match"] = `"` + task.Etag + `"`
	}

	resp, err := conn.do(ctx, "PUT", conn.resolve(task.Href), ical.TaskToVTodo(task, tagNames), headers)
	if err != nil {
		return nil, NewTransportError("UpdateTask", 0, err.Error()).WithAccount(accountID).WithError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewTransportError("UpdateTask", resp.StatusCode, resp.Status).
			WithAccount(accountID).WithHref(task.Href)
	}
	return &PutResult{Href: task.Href, Etag: strings.Trim(resp.Header.Get("ETag"), `"`)}, nil
}

// DeleteTask removes the resource at ref.Href. An already-deleted resource
// (404/410) counts as success.
func (c *CalDAVClient) DeleteTask(ctx context.Context, accountID string, ref TaskRef) (bool, error) {
	conn, err := c.connection(accountID)
	if err != nil {
		return false, err
	}

	resp, err := conn.do(ctx, "DELETE", conn.resolve(ref.Href), "", nil)
	if err != nil {
		return false, NewTransportError("DeleteTask", 0, err.Error()).
			WithAccount(accountID).WithHref(ref.Href).WithError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == 404 || resp.StatusCode == 410 {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, NewTransportError("DeleteTask", resp.StatusCode, resp.Status).
			WithAccount(accountID).WithHref(ref.Href)
	}
	return true, nil
}
