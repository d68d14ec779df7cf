// Package cli renders tasks and calendars for the command line commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"caldavtasks/store"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	titleStyle     = lipgloss.NewStyle().Bold(true)
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	highStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mediumStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	tagStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	unsyncedMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("*")
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return width
}

func priorityMarker(p store.Priority) string {
	switch p {
	case store.PriorityHigh:
		return highStyle.Render("!!!")
	case store.PriorityMedium:
		return mediumStyle.Render("!!")
	case store.PriorityLow:
		return lowStyle.Render("!")
	default:
		return ""
	}
}

// renderTaskLine formats one task for list output. tagName resolves tag
// ids to display names; dateFormat is the configured Go time layout.
func renderTaskLine(t store.Task, depth int, tagName func(string) string, dateFormat string) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("  ", depth))

	title := t.Title
	// leave room for indentation, checkbox and trailing metadata
	if avail := GetTerminalWidth() - depth*2 - 24; avail > 8 {
		if r := []rune(title); len(r) > avail {
			title = string(r[:avail-1]) + "…"
		}
	}

	if t.Completed {
		b.WriteString("[x] ")
		b.WriteString(doneStyle.Render(title))
	} else {
		b.WriteString("[ ] ")
		b.WriteString(titleStyle.Render(title))
	}

	if marker := priorityMarker(t.Priority); marker != "" {
		b.WriteString(" " + marker)
	}
	if t.DueDate != nil {
		b.WriteString(dimStyle.Render(" due " + t.DueDate.Format(dateFormat)))
	}
	for _, id := range t.Tags {
		if name := tagName(id); name != "" {
			b.WriteString(" " + tagStyle.Render("#"+name))
		}
	}
	if !t.Synced {
		b.WriteString(" " + unsyncedMarker)
	}

	return b.String()
}

// ShowTasks prints tasks as an indented tree, children under parents in
// manual order. Unsynced tasks carry a trailing marker.
func ShowTasks(w io.Writer, tasks []store.Task, tagName func(string) string, dateFormat string) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No tasks."))
		return
	}

	byID := make(map[string]store.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, entry := range store.Flatten(tasks) {
		t, ok := byID[entry.ID]
		if !ok {
			continue
		}
		fmt.Fprintln(w, renderTaskLine(t, entry.Depth, tagName, dateFormat))
		for _, sub := range t.Subtasks {
			box := "[ ]"
			title := sub.Title
			if sub.Completed {
				box = "[x]"
				title = doneStyle.Render(sub.Title)
			}
			fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", entry.Depth+1), box, title)
		}
	}
}

// ShowCalendars displays the known calendars with open task counts.
func ShowCalendars(w io.Writer, calendars []store.Calendar, s *store.Store, activeID string) {
	if len(calendars) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No calendars. Run 'caldavtasks sync' to fetch them."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render("Calendars"))
	for i, cal := range calendars {
		open := 0
		for _, t := range s.TasksForCalendar(cal.ID) {
			if !t.Completed {
				open++
			}
		}

		marker := " "
		if cal.ID == activeID {
			marker = ">"
		}
		line := fmt.Sprintf("%s %2d. %-30s", marker, i+1, cal.Name)
		if open > 0 {
			line += dimStyle.Render(fmt.Sprintf(" (%d open)", open))
		}
		fmt.Fprintln(w, line)
	}
}

// ShowAccounts displays configured accounts.
func ShowAccounts(w io.Writer, accounts []store.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No accounts configured."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render("Accounts"))
	for _, a := range accounts {
		fmt.Fprintf(w, "  %-20s %s (%s)\n", a.Name, a.ServerURL, a.ServerType)
	}
}

// ReadPassword prompts for a password without echoing it.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
