package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and task summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				status := resp.Status
				stdout := cmd.OutOrStdout()

				fmt.Fprintf(stdout, "Daemon running: %s\n", yesNo(status.Running))
				if status.PID > 0 {
					fmt.Fprintf(stdout, "PID: %d\n", status.PID)
				}
				fmt.Fprintf(stdout, "Database: %s\n", status.DatabasePath)
				fmt.Fprintf(stdout, "Lock file: %s\n", status.LockPath)
				fmt.Fprintf(stdout, "Sources: %d\n", status.Sources)

				if len(status.TaskCounts) == 0 {
					fmt.Fprintln(stdout, "Tasks: none")
					return nil
				}

				names := make([]string, 0, len(status.TaskCounts))
				for name := range status.TaskCounts {
					names = append(names, name)
				}
				sort.Strings(names)

				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, fmt.Sprintf("%d", status.TaskCounts[name])})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Status", "Tasks"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
