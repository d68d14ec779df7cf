package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"caldavtasks/internal/utils"
	"caldavtasks/store"
)

func (a *App) parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(a.config.GetDateFormat(), s, time.Local)
	if err != nil {
		return nil, utils.ErrInvalidDate(s)
	}
	return &t, nil
}

func (a *App) newAddCmd() *cobra.Command {
	var (
		calendar    string
		description string
		priority    string
		due         string
		start       string
		tags        []string
		parent      string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Long: `Add a task to the local store. It is pushed to the server on the
next sync.

Examples:
  caldavtasks add "Pay rent" --due 2026-09-01 -p high
  caldavtasks add "Buy milk" -c Groceries -t errands,home
  caldavtasks add "Write tests" --parent "New feature"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")

			calendarID := a.config.DefaultCalendarID
			if calendarID == "" {
				calendarID = a.store.ActiveCalendar()
			}
			if calendar != "" {
				cal, err := a.calendarByName(calendar)
				if err != nil {
					return err
				}
				calendarID = cal.ID
			}
			var accountID string
			if cal, ok := a.store.Calendar(calendarID); ok {
				accountID = cal.AccountID
			}

			dueDate, err := a.parseDate(due)
			if err != nil {
				return err
			}
			startDate, err := a.parseDate(start)
			if err != nil {
				return err
			}

			taskPriority := a.config.DefaultTaskPriority()
			if priority != "" {
				switch priority {
				case "none", "low", "medium", "high":
					taskPriority = store.ParsePriority(priority)
				default:
					return utils.ErrInvalidPriority(priority)
				}
			}

			task := a.store.AddTask(store.Task{
				Title:       title,
				Description: description,
				Priority:    taskPriority,
				DueDate:     dueDate,
				StartDate:   startDate,
				AccountID:   accountID,
				CalendarID:  calendarID,
			})

			tagNames := append([]string{}, a.config.DefaultTags...)
			tagNames = append(tagNames, tags...)
			if len(tagNames) > 0 {
				a.store.SetTaskTags(task.ID, a.store.ResolveTagNames(tagNames))
			}

			if parent != "" {
				parentTask, err := a.findTask(parent)
				if err != nil {
					return err
				}
				a.store.SetTaskParent(task.ID, parentTask.UID)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %q\n", title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&calendar, "calendar", "c", "", "calendar to add the task to")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority: none, low, medium, high")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().StringVar(&start, "start", "", "start date")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags, created on first use")
	cmd.Flags().StringVar(&parent, "parent", "", "make this a subtask of the matching task")
	cmd.RegisterFlagCompletionFunc("calendar", a.calendarNameCompletion)

	return cmd
}

func (a *App) newDoneCmd() *cobra.Command {
	var reopen bool

	cmd := &cobra.Command{
		Use:   "done <search>",
		Short: "Mark a task as completed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.findTask(strings.Join(args, " "))
			if err != nil {
				return err
			}

			if reopen {
				task.Completed = false
				task.CompletedAt = nil
			} else {
				task.Completed = true
				now := time.Now()
				task.CompletedAt = &now
			}
			a.store.UpdateTask(task)

			if reopen {
				fmt.Fprintf(cmd.OutOrStdout(), "Reopened %q\n", task.Title)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %q\n", task.Title)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reopen, "undo", false, "reopen a completed task")
	return cmd
}

func (a *App) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <search>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a task",
		Long: `Delete a task locally. If the task exists on the server, the remote
copy is removed on the next sync. Subtask handling follows the
deleteSubtasksWithParent config setting.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.findTask(strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.store.DeleteTask(task.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", task.Title)
			return nil
		},
	}
}
