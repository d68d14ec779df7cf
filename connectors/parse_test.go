package connectors

import (
	"testing"
)

const calendarMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/" xmlns:cal="urn:ietf:params:xml:ns:caldav" xmlns:ic="http://apple.com/ns/ical/">
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/</d:href>
    <d:propstat>
      <d:prop><d:resourcetype/></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/tasks/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>My Tasks</d:displayname>
        <cs:getctag>ctag-77</cs:getctag>
        <d:sync-token>http://sabre.io/ns/sync/12</d:sync-token>
        <cal:supported-calendar-component-set>
          <cal:comp name="VTODO"/>
        </cal:supported-calendar-component-set>
        <ic:calendar-color>#0082c9</ic:calendar-color>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/personal/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>Personal</d:displayname>
        <cal:supported-calendar-component-set>
          <cal:comp name="VEVENT"/>
        </cal:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/trashbin/</d:href>
    <d:propstat>
      <d:prop>
        <cal:supported-calendar-component-set>
          <cal:comp name="VTODO"/>
        </cal:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/broken/</d:href>
    <d:propstat>
      <d:prop>
        <cal:supported-calendar-component-set>
          <cal:comp name="VTODO"/>
        </cal:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 404 Not Found</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestParseCalendarList(t *testing.T) {
	calendars := parseCalendarList(calendarMultistatus, "acc-1")

	if len(calendars) != 1 {
		t.Fatalf("got %d calendars, want 1 (events-only, trash and error responses skipped)", len(calendars))
	}
	cal := calendars[0]
	if cal.ID != "tasks" || cal.Name != "My Tasks" {
		t.Errorf("calendar = %q %q", cal.ID, cal.Name)
	}
	if cal.URL != "/remote.php/dav/calendars/alice/tasks/" {
		t.Errorf("URL = %q", cal.URL)
	}
	if cal.CTag != "ctag-77" || cal.SyncToken != "http://sabre.io/ns/sync/12" {
		t.Errorf("tokens = %q %q", cal.CTag, cal.SyncToken)
	}
	if cal.Color != "#0082c9" || cal.AccountID != "acc-1" {
		t.Errorf("color/account = %q %q", cal.Color, cal.AccountID)
	}
}

func TestParseCalendarListNameFallsBackToID(t *testing.T) {
	xml := `<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/dav/unnamed/</d:href>
    <d:status>HTTP/1.1 200 OK</d:status>
    <comp name="VTODO"/>
  </d:response>
</d:multistatus>`
	calendars := parseCalendarList(xml, "a")
	if len(calendars) != 1 || calendars[0].Name != "unnamed" {
		t.Errorf("calendars = %+v", calendars)
	}
}

func TestParseCalendarListEmpty(t *testing.T) {
	if got := parseCalendarList("", "a"); len(got) != 0 {
		t.Errorf("got %d calendars from empty body", len(got))
	}
}

const reportMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/tasks/uid-1.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>&quot;etag-1&quot;</d:getetag>
        <cal:calendar-data>BEGIN:VCALENDAR
BEGIN:VTODO
UID:uid-1
SUMMARY:From server &amp; friends
END:VTODO
END:VCALENDAR</cal:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/calendars/alice/tasks/junk.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"etag-2"</d:getetag>
        <cal:calendar-data>this is not ical</cal:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestParseTaskReport(t *testing.T) {
	tasks := parseTaskReport(reportMultistatus, "acc-1", "tasks")

	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1 (undecodable calendar-data skipped)", len(tasks))
	}
	got := tasks[0].Task
	if got.UID != "uid-1" || got.Title != "From server & friends" {
		t.Errorf("task = %q %q", got.UID, got.Title)
	}
	if got.Href != "/remote.php/dav/calendars/alice/tasks/uid-1.ics" {
		t.Errorf("Href = %q", got.Href)
	}
	if got.Etag != "etag-1" {
		t.Errorf("Etag = %q, want bare etag-1", got.Etag)
	}
	if got.AccountID != "acc-1" || got.CalendarID != "tasks" {
		t.Errorf("binding = %q %q", got.AccountID, got.CalendarID)
	}
}

func TestExtractXMLValue(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		tag  string
		want string
	}{
		{"no prefix", "<href>/a/</href>", "href", "/a/"},
		{"d prefix", "<d:href>/b/</d:href>", "href", "/b/"},
		{"uppercase D", "<D:href>/c/</D:href>", "href", "/c/"},
		{"cs prefix", "<cs:getctag>x</cs:getctag>", "getctag", "x"},
		{"whitespace trimmed", "<d:displayname>\n  Inbox\n</d:displayname>", "displayname", "Inbox"},
		{"missing", "<d:other>x</d:other>", "href", ""},
		{"unterminated", "<d:href>/a/", "href", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractXMLValue(tt.xml, tt.tag); got != tt.want {
				t.Errorf("extractXMLValue(%q, %q) = %q, want %q", tt.xml, tt.tag, got, tt.want)
			}
		})
	}
}

func TestTransportErrorPredicates(t *testing.T) {
	if !NewTransportError("FetchTasks", 404, "not found").IsNotFound() {
		t.Error("404 should report IsNotFound")
	}
	if !NewTransportError("FetchTasks", 401, "denied").IsUnauthorized() ||
		!NewTransportError("FetchTasks", 403, "denied").IsUnauthorized() {
		t.Error("401/403 should report IsUnauthorized")
	}
	if !NewTransportError("UpdateTask", 412, "mismatch").IsConflict() {
		t.Error("412 should report IsConflict")
	}

	err := NewTransportError("UpdateTask", 412, "Precondition Failed").WithAccount("acc").WithHref("/x.ics")
	if err.Error() != "UpdateTask failed with status 412: Precondition Failed" {
		t.Errorf("Error() = %q", err.Error())
	}
	plain := NewTransportError("Reconnect", 0, "dial refused")
	if plain.Error() != "Reconnect failed: dial refused" {
		t.Errorf("Error() = %q", plain.Error())
	}
}
