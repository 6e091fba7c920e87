package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coinline/internal/app"
)

func activityCmd() *cobra.Command {
	activity := &cobra.Command{Use: "activity", Short: "Project activity log"}
	var project string
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show activity entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Feeds.ListActivity(ctx, project, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Actor", "Type", "Task", "Status", "Extra"})
				for _, e := range items {
					extra := ""
					if len(e.Extra) > 0 {
						extra = fmt.Sprint(e.Extra)
					}
					tw.AppendRow(table.Row{formatMillis(e.TS), e.ActorID, e.Type, e.TaskName, e.NewStatus, extra})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&project, "project", "", "project id")
	tail.Flags().IntVarP(&n, "limit", "n", 50, "max entries")
	_ = tail.MarkFlagRequired("project")
	activity.AddCommand(tail)
	return activity
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{Use: "chat", Short: "Project system chat"}
	var project string
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show system chat messages, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Feeds.ListChat(ctx, project, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, m := range items {
					fmt.Printf("[%s] %s: %s\n", formatMillis(m.Timestamp), m.MessageType, m.Content)
					if m.QuotedMessage != nil {
						fmt.Printf("    > %s\n", m.QuotedMessage.Content)
					}
				}
				return nil
			})
		},
	}
	tail.Flags().StringVar(&project, "project", "", "project id")
	tail.Flags().IntVarP(&n, "limit", "n", 50, "max messages")
	_ = tail.MarkFlagRequired("project")
	chat.AddCommand(tail)
	return chat
}

func notificationsCmd() *cobra.Command {
	notes := &cobra.Command{Use: "notifications", Short: "Notification inbox"}
	var n int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Feeds.ListNotifications(ctx, currentActor().ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Type", "Title", "Message", "Task"})
				for _, x := range items {
					tw.AppendRow(table.Row{formatMillis(x.CreatedAt), x.Type, x.Title, x.Message, x.RelatedEntityID})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVarP(&n, "limit", "n", 50, "max notifications")
	notes.AddCommand(list)
	return notes
}
