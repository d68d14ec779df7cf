// Package tui implements the interactive terminal interface.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"caldavtasks/store"
	tasksync "caldavtasks/sync"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mediumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type inputMode int

const (
	modeList inputMode = iota
	modeSearch
	modeAdd
)

// row is one visible line in the task list.
type row struct {
	task  store.Task
	depth int
}

type (
	storeChangedMsg struct{}
	syncDoneMsg     struct{ err error }
)

// Model is the bubbletea model for the task list screen.
type Model struct {
	store     *store.Store
	engine    *tasksync.Engine
	scheduler *tasksync.Scheduler

	input   textinput.Model
	spin    spinner.Model
	mode    inputMode
	cursor  int
	rows    []row
	search  string
	showAll bool
	syncing bool
	status  string

	defaultPriority store.Priority
	dateFormat      string
	tagName         func(string) string
	changes         chan struct{}
	unsubscribe     func()
	width           int
	height          int
	quitting        bool
}

// NewModel creates the task list model. scheduler may be nil; without it a
// calendar switch changes the view only. tagName resolves tag ids for
// display.
func NewModel(s *store.Store, engine *tasksync.Engine, scheduler *tasksync.Scheduler, defaultPriority store.Priority, dateFormat string) Model {
	ti := textinput.New()
	ti.Placeholder = "Task title..."
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	changes := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	m := Model{
		store:           s,
		engine:          engine,
		scheduler:       scheduler,
		input:           ti,
		spin:            sp,
		defaultPriority: defaultPriority,
		dateFormat:      dateFormat,
		changes:         changes,
		unsubscribe:     unsubscribe,
		width:           80,
		height:          24,
	}
	m.tagName = func(id string) string {
		if tag, ok := s.Tag(id); ok {
			return tag.Name
		}
		return ""
	}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	filter := store.Filter{
		CalendarID:    m.store.ActiveCalendar(),
		TagID:         m.store.ActiveTag(),
		ShowCompleted: m.showAll,
		Search:        m.search,
	}
	tasks := m.store.Query(filter, store.SortManual, true)

	byID := make(map[string]store.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	m.rows = m.rows[:0]
	for _, entry := range store.Flatten(tasks) {
		if t, ok := byID[entry.ID]; ok {
			m.rows = append(m.rows, row{task: t, depth: entry.Depth})
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return storeChangedMsg{}
	}
}

func (m Model) runSync() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		engine.SyncAll(ctx)
		if msg := engine.LastSyncError(); msg != "" {
			return syncDoneMsg{err: fmt.Errorf("%s", msg)}
		}
		return syncDoneMsg{err: nil}
	}
}

// Init starts the change listener.
func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

// Update handles messages and updates model state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case syncDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = dimStyle.Render("synced " + time.Now().Format("15:04:05"))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode != modeList {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	}

	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		m.unsubscribe()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case " ", "x":
		if t, ok := m.current(); ok {
			t.Completed = !t.Completed
			if t.Completed {
				now := time.Now()
				t.CompletedAt = &now
			} else {
				t.CompletedAt = nil
			}
			m.store.UpdateTask(t)
			m.refresh()
		}

	case "d":
		if t, ok := m.current(); ok {
			m.store.DeleteTask(t.ID)
			m.status = dimStyle.Render("deleted " + t.Title)
			m.refresh()
		}

	case "a":
		m.mode = modeAdd
		m.input.Placeholder = "Task title..."
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "/":
		m.mode = modeSearch
		m.input.Placeholder = "Search..."
		m.input.SetValue(m.search)
		m.input.Focus()
		return m, textinput.Blink

	case "c":
		m.showAll = !m.showAll
		m.refresh()

	case "tab":
		next := m.cycleCalendar()
		m.refresh()
		if m.scheduler != nil && next != "" {
			return m, m.syncActiveCalendar(next)
		}

	case "s":
		if !m.syncing {
			m.syncing = true
			m.status = ""
			return m, tea.Batch(m.spin.Tick, m.runSync())
		}

	case "esc":
		if m.search != "" {
			m.search = ""
			m.refresh()
		}
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.input.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.mode {
		case modeAdd:
			if value != "" {
				m.addTask(value)
			}
		case modeSearch:
			m.search = value
			m.refresh()
		}
		m.mode = modeList
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == modeSearch {
		m.search = strings.TrimSpace(m.input.Value())
		m.refresh()
	}
	return m, cmd
}

func (m *Model) addTask(title string) {
	calendarID := m.store.ActiveCalendar()
	var accountID string
	if cal, ok := m.store.Calendar(calendarID); ok {
		accountID = cal.AccountID
	}
	t := m.store.AddTask(store.Task{
		Title:      title,
		Priority:   m.defaultPriority,
		AccountID:  accountID,
		CalendarID: calendarID,
	})
	if tagID := m.store.ActiveTag(); tagID != "" {
		m.store.SetTaskTags(t.ID, []string{tagID})
	}
	m.refresh()
}

// cycleCalendar advances the active calendar and returns the new id, empty
// for the all-calendars view.
func (m *Model) cycleCalendar() string {
	calendars := m.store.Calendars()
	if len(calendars) == 0 {
		return ""
	}
	active := m.store.ActiveCalendar()
	next := calendars[0].ID
	for i, cal := range calendars {
		if cal.ID == active && i+1 < len(calendars) {
			next = calendars[i+1].ID
			break
		}
	}
	if active == calendars[len(calendars)-1].ID {
		next = "" // wrap around to the all-calendars view
	}
	m.store.SetActiveCalendar(next)
	return next
}

// syncActiveCalendar resyncs the newly selected calendar in the background.
func (m Model) syncActiveCalendar(calendarID string) tea.Cmd {
	sched := m.scheduler
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sched.ActiveCalendarChanged(ctx, calendarID)
		return syncDoneMsg{err: nil}
	}
}

func (m Model) current() (store.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return store.Task{}, false
	}
	return m.rows[m.cursor].task, true
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

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(m.renderHeader())
	s.WriteString("\n\n")

	if len(m.rows) == 0 {
		s.WriteString(dimStyle.Render("  No tasks. Press 'a' to add one."))
		s.WriteString("\n")
	}
	for i, r := range m.rows {
		s.WriteString(m.renderRow(i, r))
		s.WriteString("\n")
	}

	if m.mode != modeList {
		s.WriteString("\n")
		s.WriteString(m.input.View())
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.status != "" {
		s.WriteString(m.status)
		s.WriteString("\n")
	}
	s.WriteString(dimStyle.Render("a add · space done · d delete · / search · tab calendar · c completed · s sync · q quit"))

	return s.String()
}

func (m Model) renderHeader() string {
	title := "All calendars"
	if id := m.store.ActiveCalendar(); id != "" {
		if cal, ok := m.store.Calendar(id); ok {
			title = cal.Name
		}
	}
	if tagID := m.store.ActiveTag(); tagID != "" {
		if tag, ok := m.store.Tag(tagID); ok {
			title = "#" + tag.Name
		}
	}

	header := headerStyle.Render(title)
	if m.syncing {
		header += "  " + m.spin.View() + dimStyle.Render("syncing...")
	} else if !m.engine.LastSyncTime().IsZero() {
		header += "  " + dimStyle.Render("last sync "+m.engine.LastSyncTime().Format("15:04"))
	}
	if m.search != "" {
		header += "  " + dimStyle.Render("filter: "+m.search)
	}
	return header
}

func (m Model) renderRow(i int, r row) string {
	t := r.task

	checkbox := "[ ]"
	title := t.Title
	if t.Completed {
		checkbox = "[x]"
		title = doneStyle.Render(t.Title)
	}

	line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", r.depth), checkbox, title)
	if marker := priorityMarker(t.Priority); marker != "" {
		line += " " + marker
	}
	if t.DueDate != nil {
		line += dimStyle.Render(" due " + t.DueDate.Format(m.dateFormat))
	}
	for _, id := range t.Tags {
		if name := m.tagName(id); name != "" {
			line += dimStyle.Render(" #" + name)
		}
	}
	if !t.Synced {
		line += mediumStyle.Render(" *")
	}

	cursor := "  "
	if i == m.cursor {
		cursor = "> "
		return selectedStyle.Render(cursor + line)
	}
	return cursor + line
}

// Run starts the TUI and blocks until the user quits. The scheduler runs
// for the lifetime of the session, giving the TUI the same startup and
// interval sync behavior as the daemon; its startup sync happens in the
// background so the screen comes up immediately.
func Run(s *store.Store, engine *tasksync.Engine, scheduler *tasksync.Scheduler, defaultPriority store.Priority, dateFormat string) error {
	if scheduler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		started := make(chan struct{})
		go func() {
			scheduler.Start(ctx, len(s.Accounts()) > 0)
			close(started)
		}()
		defer func() {
			<-started
			scheduler.Stop()
		}()
	}

	m := NewModel(s, engine, scheduler, defaultPriority, dateFormat)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
