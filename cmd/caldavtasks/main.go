package main

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"caldavtasks/connectors"
	"caldavtasks/internal/cli"
	"caldavtasks/internal/config"
	"caldavtasks/internal/credentials"
	"caldavtasks/internal/tui"
	"caldavtasks/internal/utils"
	"caldavtasks/store"
	tasksync "caldavtasks/sync"
)

// App bundles the wired-up application state shared by the commands.
type App struct {
	config    *config.Config
	store     *store.Store
	db        *store.DB
	client    *connectors.CalDAVClient
	engine    *tasksync.Engine
	scheduler *tasksync.Scheduler
	stopSave  func()
}

func NewApp() (*App, error) {
	cfg := config.GetConfig()

	s := store.New()
	s.SetSubtaskCascade(cfg.CascadeMode())

	db, err := store.Open(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	if err := db.Load(s); err != nil {
		return nil, fmt.Errorf("failed to load local database: %w", err)
	}

	// Config is the source of truth for accounts; re-adding with the same
	// id overwrites whatever the snapshot carried.
	for _, account := range cfg.StoreAccounts() {
		s.AddAccount(account)
	}

	client := connectors.NewCalDAVClient()
	for _, a := range cfg.Accounts {
		if a.InsecureSkipVerify {
			client.InsecureSkipVerify = true
			utils.Warnf("TLS verification disabled for account %s", a.Name)
		}
	}

	engine := tasksync.NewEngine(s, client)
	engine.SetCredentialsResolver(credentials.Apply)
	engine.SetOnlineCheck(onlineCheck(s))

	app := &App{
		config:    cfg,
		store:     s,
		db:        db,
		client:    client,
		engine:    engine,
		scheduler: tasksync.NewScheduler(engine, cfg.SyncSettings),
		stopSave: store.AutoSave(db, s, func(err error) {
			utils.Errorf("failed to save local database: %v", err)
		}),
	}
	return app, nil
}

// Close flushes the snapshot and releases the database.
func (a *App) Close() {
	a.stopSave()
	if err := a.db.Save(a.store); err != nil {
		utils.Errorf("failed to save local database: %v", err)
	}
	if err := a.db.Close(); err != nil {
		utils.Errorf("failed to close local database: %v", err)
	}
}

// onlineCheck probes the first account's server with a short TCP dial.
// With no accounts there is nothing to sync against, so report offline.
func onlineCheck(s *store.Store) func() bool {
	return func() bool {
		accounts := s.Accounts()
		if len(accounts) == 0 {
			return false
		}
		u, err := url.Parse(accounts[0].ServerURL)
		if err != nil || u.Host == "" {
			return false
		}
		host := u.Host
		if u.Port() == "" {
			port := "443"
			if u.Scheme == "http" {
				port = "80"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		conn, err := net.DialTimeout("tcp", host, 3*time.Second)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

func (a *App) tagName(id string) string {
	if tag, ok := a.store.Tag(id); ok {
		return tag.Name
	}
	return ""
}

// findTask locates a single open task by case-insensitive title match.
func (a *App) findTask(search string) (store.Task, error) {
	needle := strings.ToLower(search)
	var matches []store.Task
	for _, t := range a.store.Tasks() {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return store.Task{}, utils.ErrTaskNotFound(search)
	case 1:
		return matches[0], nil
	default:
		titles := make([]string, 0, len(matches))
		for _, t := range matches {
			titles = append(titles, t.Title)
		}
		return store.Task{}, fmt.Errorf("multiple tasks match %q: %s", search, strings.Join(titles, ", "))
	}
}

func (a *App) calendarByName(name string) (store.Calendar, error) {
	for _, cal := range a.store.Calendars() {
		if strings.EqualFold(cal.Name, name) || cal.ID == name {
			return cal, nil
		}
	}
	return store.Calendar{}, utils.ErrCalendarNotFound(name)
}

func (a *App) calendarNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var completions []string
	for _, cal := range a.store.Calendars() {
		if strings.HasPrefix(strings.ToLower(cal.Name), strings.ToLower(toComplete)) {
			completions = append(completions, cal.Name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

func main() {
	var verbose bool
	var configPath string

	// --config must be handled before cobra runs so GetConfig sees it
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			config.SetCustomConfigPath(os.Args[i+1])
		} else if strings.HasPrefix(arg, "--config=") {
			config.SetCustomConfigPath(strings.TrimPrefix(arg, "--config="))
		} else if arg == "--verbose" || arg == "-v" {
			utils.SetVerboseMode(true)
		}
	}

	app, err := NewApp()
	if err != nil {
		log.Fatal("Failed to initialize app:", err)
	}
	defer app.Close()

	rootCmd := &cobra.Command{
		Use:   "caldavtasks",
		Short: "Local-first CalDAV task manager",
		Long: `caldavtasks keeps a local task store and synchronizes it with CalDAV
servers. All commands work offline; changes are pushed on the next sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.config.UI == "cli" {
				return app.runList(cmd.OutOrStdout(), listOptions{})
			}
			return tui.Run(app.store, app.engine, app.scheduler, app.config.DefaultTaskPriority(), app.config.GetDateFormat())
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file or directory")

	rootCmd.AddCommand(
		app.newListCmd(),
		app.newAddCmd(),
		app.newDoneCmd(),
		app.newRemoveCmd(),
		app.newCalendarsCmd(),
		app.newSyncCmd(),
		app.newDaemonCmd(),
		app.newExportCmd(),
		app.newImportCmd(),
		app.newAccountsCmd(),
		app.newTuiCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *App) newTuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(a.store, a.engine, a.scheduler, a.config.DefaultTaskPriority(), a.config.GetDateFormat())
		},
	}
}

func (a *App) newCalendarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendars",
		Short: "List known calendars",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ShowCalendars(cmd.OutOrStdout(), a.store.Calendars(), a.store, a.store.ActiveCalendar())
			return nil
		},
	}
}
