package connectors

import (
	"fmt"
	"strings"

	"caldavtasks/ical"
	"caldavtasks/store"
)

// Multistatus bodies are scraped with plain string searches rather than an
// XML decoder: servers disagree on namespace prefixes and the handful of
// elements we need are unambiguous by local name.

// extractResponses splits a multistatus body into its <response> elements,
// trying the prefix variants servers actually emit.
func extractResponses(xmlData string) []string {
	var responses []string

	patterns := []string{
		"<d:response>",
		"<response>",
		"<D:response>",
	}

	for _, startTag := range patterns {
		endTag := strings.Replace(startTag, "<", "</", 1)

		data := xmlData
		for {
			start := strings.Index(data, startTag)
			if start == -1 {
				break
			}
			end := strings.Index(data[start:], endTag)
			if end == -1 {
				break
			}
			responses = append(responses, data[start:start+end+len(endTag)])
			data = data[start+end+len(endTag):]
		}

		if len(responses) > 0 {
			break
		}
	}

	return responses
}

// extractXMLValue pulls the text content of the first element matching tag,
// with or without a namespace prefix.
func extractXMLValue(xml, tag string) string {
	if start := strings.Index(xml, fmt.Sprintf("<%s>", tag)); start != -1 {
		start += len(tag) + 2
		if end := strings.Index(xml[start:], fmt.Sprintf("</%s>", tag)); end != -1 {
			return strings.TrimSpace(xml[start : start+end])
		}
	}

	for _, prefix := range []string{"d:", "D:", "cs:", "cal:", "c:", "ic:", "x1:", "nc:"} {
		fullTag := prefix + tag
		if start := strings.Index(xml, fmt.Sprintf("<%s>", fullTag)); start != -1 {
			start += len(fullTag) + 2
			if end := strings.Index(xml[start:], fmt.Sprintf("</%s>", fullTag)); end != -1 {
				return strings.TrimSpace(xml[start : start+end])
			}
		}
	}

	return ""
}

// xmlUnescaper reverses the entity escaping applied to calendar-data
// payloads embedded in multistatus XML.
var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&#13;", "\r",
	"&#10;", "\n",
	"&amp;", "&",
)

// supportsVTodo reports whether a collection advertises the VTODO component.
func supportsVTodo(response string) bool {
	return strings.Contains(response, `name="VTODO"`)
}

// parseCalendarList extracts VTODO-capable calendars from a PROPFIND
// multistatus. Special collections (trash, inbox, outbox) and trashed
// calendars are skipped.
func parseCalendarList(xmlData, accountID string) []store.Calendar {
	var calendars []store.Calendar

	for _, response := range extractResponses(xmlData) {
		if !strings.Contains(response, "HTTP/1.1 200 OK") {
			continue
		}
		if !supportsVTodo(response) {
			continue
		}

		href := extractXMLValue(response, "href")
		if href == "" {
			continue
		}
		parts := strings.Split(strings.Trim(href, "/"), "/")
		id := parts[len(parts)-1]
		if id == "" || id == "trashbin" || id == "inbox" || id == "outbox" {
			continue
		}
		if extractXMLValue(response, "deleted-at") != "" {
			continue
		}

		name := extractXMLValue(response, "displayname")
		if name == "" {
			name = id
		}

		calendars = append(calendars, store.Calendar{
			ID:        id,
			Name:      name,
			URL:       href,
			CTag:      extractXMLValue(response, "getctag"),
			SyncToken: extractXMLValue(response, "sync-token"),
			Color:     extractXMLValue(response, "calendar-color"),
			AccountID: accountID,
		})
	}

	return calendars
}

// parseTaskReport extracts tasks from a calendar-query REPORT multistatus:
// one VTODO per response, bound to its href and etag. Responses whose
// calendar data does not decode are skipped.
func parseTaskReport(xmlData, accountID, calendarID string) []ical.ParsedTodo {
	var tasks []ical.ParsedTodo

	for _, response := range extractResponses(xmlData) {
		href := extractXMLValue(response, "href")
		etag := strings.ReplaceAll(extractXMLValue(response, "getetag"), "&quot;", "")
		etag = strings.Trim(etag, `"`)

		data := extractXMLValue(response, "calendar-data")
		if data == "" {
			continue
		}
		data = xmlUnescaper.Replace(data)

		parsed := ical.VTodoToTask(data, accountID, calendarID, href, etag)
		if parsed == nil {
			continue
		}
		tasks = append(tasks, *parsed)
	}

	return tasks
}
