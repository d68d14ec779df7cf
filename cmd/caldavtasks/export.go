package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"caldavtasks/ical"
	"caldavtasks/internal/utils"
	"caldavtasks/store"
)

func (a *App) newExportCmd() *cobra.Command {
	var (
		format       string
		output       string
		calendarName string
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks to a file or stdout",
		Long: `Export tasks as iCalendar, JSON, Markdown or CSV.

The format is taken from --format, or inferred from the output file
extension (.ics, .json, .md, .csv).

Examples:
  caldavtasks export -o backup.ics
  caldavtasks export --format markdown -c Work
  caldavtasks export --format csv --all -o tasks.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.Filter{ShowCompleted: all}
			if calendarName != "" {
				cal, err := a.calendarByName(calendarName)
				if err != nil {
					return err
				}
				filter.CalendarID = cal.ID
			}
			tasks := a.store.Query(filter, store.SortManual, true)

			if format == "" && output != "" {
				switch strings.ToLower(filepath.Ext(output)) {
				case ".ics":
					format = "ics"
				case ".json":
					format = "json"
				case ".md", ".markdown":
					format = "markdown"
				case ".csv":
					format = "csv"
				}
			}
			if format == "" {
				format = "ics"
			}

			var data []byte
			switch format {
			case "ics":
				data = []byte(ical.ExportICS(tasks, a.tagName))
			case "json":
				encoded, err := ical.ExportJSON(tasks)
				if err != nil {
					return fmt.Errorf("failed to encode tasks: %w", err)
				}
				data = encoded
			case "markdown", "md":
				data = []byte(ical.ExportMarkdown(tasks, a.tagName))
			case "csv":
				data = []byte(ical.ExportCSV(tasks, a.tagName))
			default:
				return fmt.Errorf("unknown export format %q (ics, json, markdown, csv)", format)
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n",
				utils.FormatCount(len(tasks), "task", "tasks"), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "export format: ics, json, markdown, csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when omitted)")
	cmd.Flags().StringVarP(&calendarName, "calendar", "c", "", "export a single calendar")
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	cmd.RegisterFlagCompletionFunc("calendar", a.calendarNameCompletion)

	return cmd
}

func (a *App) newImportCmd() *cobra.Command {
	var calendarName string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from an .ics or .json file",
		Long: `Import tasks into a calendar. Imported tasks are new local tasks;
they get fresh identifiers and are pushed on the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return utils.WrapWithSuggestion(fmt.Errorf("failed to read %s: %w", path, err),
					"Check the file path; import accepts .ics and .json files")
			}

			calendarID := a.store.ActiveCalendar()
			if calendarName != "" {
				cal, err := a.calendarByName(calendarName)
				if err != nil {
					return err
				}
				calendarID = cal.ID
			}
			var accountID string
			if cal, ok := a.store.Calendar(calendarID); ok {
				accountID = cal.AccountID
			}

			var imported int
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ics":
				for _, parsed := range ical.ParseICSFile(string(data)) {
					// Keep the file's UID so parent links between imported
					// tasks survive.
					t := parsed.Task
					t.Href = ""
					t.Etag = ""
					t.Synced = false
					t.AccountID = accountID
					t.CalendarID = calendarID
					added := a.store.AddTask(t)
					if len(parsed.Categories) > 0 {
						a.store.SetTaskTags(added.ID, a.store.ResolveTagNames(parsed.Categories))
					}
					imported++
				}
			case ".json":
				tasks := ical.ParseJSONTasksFile(data)
				if tasks == nil {
					return fmt.Errorf("%s is not a task export", path)
				}
				for _, t := range tasks {
					t.AccountID = accountID
					t.CalendarID = calendarID
					a.store.AddTask(t)
					imported++
				}
			default:
				return fmt.Errorf("unsupported import format %q (.ics or .json)", filepath.Ext(path))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n",
				utils.FormatCount(imported, "task", "tasks"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&calendarName, "calendar", "c", "", "calendar to import into")
	cmd.RegisterFlagCompletionFunc("calendar", a.calendarNameCompletion)

	return cmd
}
