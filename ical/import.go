package ical

import (
	"encoding/json"

	"caldavtasks/store"

	"github.com/google/uuid"
)

// ParseICSFile extracts every VTODO in a bundle into partial task records.
// No account or calendar is assigned; that is the caller's responsibility.
// Unparseable components are skipped, a fully unparseable file yields an
// empty slice.
func ParseICSFile(text string) []ParsedTodo {
	var out []ParsedTodo
	for _, block := range extractVTodoBlocks(text) {
		if parsed := decodeBlock(block, "", "", "", ""); parsed != nil {
			out = append(out, *parsed)
		}
	}
	return out
}

// ParseJSONTasksFile accepts a flat array of task-shaped objects. The
// heuristic is deliberately loose: any array whose first element carries a
// title field is accepted. Every imported task gets a fresh local id and is
// marked unsynced regardless of what the input claims. Returns nil on
// malformed input.
func ParseJSONTasksFile(data []byte) []store.Task {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil || len(probe) == 0 {
		return nil
	}
	if _, ok := probe[0]["title"]; !ok {
		return nil
	}

	var tasks []store.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil
	}
	for i := range tasks {
		tasks[i].ID = uuid.NewString()
		if tasks[i].UID == "" {
			tasks[i].UID = uuid.NewString()
		}
		tasks[i].Synced = false
		tasks[i].Href = ""
		tasks[i].Etag = ""
	}
	return tasks
}
