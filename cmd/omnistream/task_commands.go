package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and control capture tasks",
	}

	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskStartCommand(ctx))
	taskCmd.AddCommand(newTaskStopCommand(ctx))
	taskCmd.AddCommand(newTaskRemoveCommand(ctx))

	return taskCmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(stdout, "No tasks")
					return nil
				}

				rows := make([][]string, 0, len(resp.Tasks))
				for _, task := range resp.Tasks {
					rows = append(rows, []string{
						task.ID,
						task.Name,
						task.Status,
						task.Filename,
						task.CreatedAt,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Name", "Status", "Current File", "Created"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}

func newTaskStartCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "start <url>",
		Short: "Start recording a URL immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskStart(name, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Capture started as task %s\n", resp.TaskID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Task name (defaults to the URL)")
	return cmd
}

func newTaskStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop a running capture or reset a finished task to idle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TaskStop(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped task %s\n", args[0])
				return nil
			})
		},
	}
}

func newTaskRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a stopped task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TaskRemove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed task %s\n", args[0])
				return nil
			})
		},
	}
}
