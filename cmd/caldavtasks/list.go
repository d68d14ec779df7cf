package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"caldavtasks/internal/cli"
	"caldavtasks/store"
)

type listOptions struct {
	calendar      string
	tag           string
	search        string
	sortBy        string
	descending    bool
	showCompleted bool
}

func (a *App) runList(w io.Writer, opts listOptions) error {
	filter := store.Filter{
		CalendarID:    a.store.ActiveCalendar(),
		TagID:         a.store.ActiveTag(),
		ShowCompleted: opts.showCompleted,
		Search:        opts.search,
	}

	if opts.calendar != "" {
		cal, err := a.calendarByName(opts.calendar)
		if err != nil {
			return err
		}
		filter.CalendarID = cal.ID
		filter.TagID = ""
	}
	if opts.tag != "" {
		tag, ok := a.store.TagByName(opts.tag)
		if !ok {
			return fmt.Errorf("tag %q not found", opts.tag)
		}
		filter.TagID = tag.ID
		filter.CalendarID = ""
	}

	mode := store.SortManual
	if opts.sortBy != "" {
		mode = store.SortMode(opts.sortBy)
	}

	// created and modified show the most recent first; --desc flips the
	// direction of whichever default the mode has
	ascending := !opts.descending
	if mode == store.SortCreated || mode == store.SortModified {
		ascending = opts.descending
	}

	tasks := a.store.Query(filter, mode, ascending)
	cli.ShowTasks(w, tasks, a.tagName, a.config.GetDateFormat())
	return nil
}

func (a *App) newListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks from the local store.

Examples:
  caldavtasks list                      # open tasks in the active view
  caldavtasks list --all                # include completed tasks
  caldavtasks list -c Work              # one calendar
  caldavtasks list -t urgent            # one tag
  caldavtasks list --sort due           # by due date, undated last
  caldavtasks list -s "invoice"         # title/description search`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.calendar, "calendar", "c", "", "filter by calendar name")
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "filter by tag name")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "search in titles and descriptions")
	cmd.Flags().StringVar(&opts.sortBy, "sort", "", "sort mode: manual, due, start, priority, title, created, modified")
	cmd.Flags().BoolVar(&opts.descending, "desc", false, "reverse the sort direction")
	cmd.Flags().BoolVarP(&opts.showCompleted, "all", "a", false, "include completed tasks")
	cmd.RegisterFlagCompletionFunc("calendar", a.calendarNameCompletion)

	return cmd
}
