package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coinline/internal/app"
	"coinline/internal/domain"
	"coinline/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow pending -> in_progress -> waiting_approval -> completed. Submitting requires every required action to be completed; approval pays the coins fixed at creation.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(transitionCmd("start", "Start working on a task (assignee)", domain.StatusInProgress))
	task.AddCommand(transitionCmd("submit", "Submit a task for approval (assignee)", domain.StatusWaitingApproval))
	task.AddCommand(transitionCmd("approve", "Approve a submitted task (admin)", domain.StatusCompleted))
	task.AddCommand(transitionCmd("reject", "Send a submitted task back to pending (admin)", domain.StatusPending))
	task.AddCommand(transitionCmd("block", "Block a task (admin)", domain.StatusBlocked))
	return task
}

func taskCreateCmd() *cobra.Command {
	var (
		opts        engine.TaskCreateOptions
		priority    string
		actionsJSON string
		templateID  string
		due         string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Priority = domain.Priority(priority)
			opts.Actor = currentActor()
			if actionsJSON != "" {
				if err := json.Unmarshal([]byte(actionsJSON), &opts.Actions); err != nil {
					return fmt.Errorf("invalid --actions: %w", err)
				}
			}
			if due != "" {
				ts, err := time.Parse(time.RFC3339, due)
				if err != nil {
					return fmt.Errorf("invalid --due (want RFC3339): %w", err)
				}
				ms := ts.UnixMilli()
				opts.DueDate = &ms
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					t   domain.Task
					err error
				)
				if templateID != "" {
					t, err = a.Engine.CreateTaskFromTemplate(ctx, opts, templateID)
				} else {
					t, err = a.Engine.CreateTask(ctx, opts)
				}
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee actor id")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|critical")
	cmd.Flags().Float64Var(&opts.DifficultyLevel, "difficulty", 1, "difficulty level")
	cmd.Flags().StringVar(&actionsJSON, "actions", "", `actions as JSON, e.g. [{"title":"Dig","type":"checkbox","required":true}]`)
	cmd.Flags().StringVar(&templateID, "template", "", "copy actions from this template")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task with its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var (
		f        domain.TaskFilter
		status   string
		priority string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.Status(status)
			f.Priority = domain.Priority(priority)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Priority", "Coins", "Actions"})
				for _, t := range page.Items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.AssigneeID, t.Priority, t.CoinsReward, actionProgress(t)})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("page %d/%d (%d)", page.Page, page.TotalPages, page.TotalCount)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var (
		title, description, assignee, priority string
		difficulty                             float64
		clearDue                               bool
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields (status changes use start/submit/approve/reject/block)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p engine.TaskPatch
			if cmd.Flags().Changed("title") {
				p.Title = &title
			}
			if cmd.Flags().Changed("description") {
				p.Description = &description
			}
			if cmd.Flags().Changed("assignee") {
				p.AssigneeID = &assignee
			}
			if cmd.Flags().Changed("priority") {
				pr := domain.Priority(priority)
				p.Priority = &pr
			}
			if cmd.Flags().Changed("difficulty") {
				p.DifficultyLevel = &difficulty
			}
			p.ClearDueDate = clearDue
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTask(ctx, args[0], p, currentActor())
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().Float64Var(&difficulty, "difficulty", 0, "new difficulty (coins are not recomputed)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteTask(ctx, args[0], currentActor()); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func transitionCmd(use, short string, to domain.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.Transition(ctx, args[0], to, currentActor())
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Complete or uncomplete task actions"}
	var dataJSON string
	complete := &cobra.Command{
		Use:   "complete <task-id> <action-id>",
		Short: "Mark an action completed, merging --data into its payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data domain.ActionData
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CompleteAction(ctx, args[0], args[1], currentActor(), data)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	complete.Flags().StringVar(&dataJSON, "data", "", `action data as JSON, e.g. {"value":30,"unit":"cm"}`)
	uncomplete := &cobra.Command{
		Use:   "uncomplete <task-id> <action-id>",
		Short: "Clear an action's completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UncompleteAction(ctx, args[0], args[1], currentActor())
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	action.AddCommand(complete, uncomplete)
	return action
}

func commentCmd() *cobra.Command {
	comment := &cobra.Command{Use: "comment", Short: "Task comments"}
	comment.AddCommand(&cobra.Command{
		Use:   "add <task-id> <text>",
		Short: "Append a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.AppendComment(ctx, args[0], currentActor(), args[1])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	})
	return comment
}

func actionProgress(t domain.Task) string {
	done := 0
	for _, a := range t.Actions {
		if a.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(t.Actions))
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("status: %s  priority: %s  assignee: %s  coins: %d  version: %d\n", t.Status, t.Priority, t.AssigneeID, t.CoinsReward, t.Version)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Action", "Title", "Type", "Required", "Done", "By"})
	for _, a := range t.Actions {
		by := ""
		if a.CompletedBy != nil {
			by = *a.CompletedBy
		}
		tw.AppendRow(table.Row{a.ID, a.Title, a.Type, a.Required, a.Completed, by})
	}
	tw.Render()
	return nil
}
