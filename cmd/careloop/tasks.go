package main

import (
	"fmt"
	"sort"

	"github.com/careloop/careloop/internal/task"
	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var addTime string

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}

		t := task.Task{
			Title:  args[0],
			Time:   addTime,
			UserID: cfg.Client.UserID,
		}
		t.SetDefaults()
		if err := store.SaveTask(cmd.Context(), t); err != nil {
			return err
		}
		fmt.Println(ui.Success("Added " + t.Title))
		fmt.Println(ui.Dim("  id " + t.ID))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}

		tasks, err := store.GetTasks(cmd.Context(), cfg.Client.UserID)
		if err != nil {
			return err
		}
		sort.Slice(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		})

		if len(tasks) == 0 {
			fmt.Println(ui.Dim("No tasks."))
		}
		for _, t := range tasks {
			fmt.Println(ui.TaskLine(t.Title, t.Time, t.Completed))
			fmt.Println(ui.Dim("    " + t.ID))
		}

		ts, err := store.LastSyncTime(cmd.Context())
		if err == nil && ts != nil {
			fmt.Println(ui.Dim(fmt.Sprintf("last synced %s", ts.Local().Format("2006-01-02 15:04:05"))))
		}
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}

		tasks, err := store.GetTasks(cmd.Context(), cfg.Client.UserID)
		if err != nil {
			return err
		}
		t, ok := task.ByID(tasks)[args[0]]
		if !ok {
			return fmt.Errorf("no task with id %s", args[0])
		}

		t.Completed = true
		if err := store.SaveTask(cmd.Context(), t); err != nil {
			return err
		}
		fmt.Println(ui.Success("Completed " + t.Title))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}

		if err := store.DeleteTask(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success("Deleted " + args[0]))
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addTime, "time", "", `when the task is due, as free text (e.g. "8:00 AM")`)
}
