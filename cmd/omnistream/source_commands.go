package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
)

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage monitored stream sources",
	}

	sourceCmd.AddCommand(newSourceListCommand(ctx))
	sourceCmd.AddCommand(newSourceAddCommand(ctx))
	sourceCmd.AddCommand(newSourceRemoveCommand(ctx))

	return sourceCmd
}

func newSourceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SourceList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Sources) == 0 {
					fmt.Fprintln(stdout, "No sources configured")
					return nil
				}

				rows := make([][]string, 0, len(resp.Sources))
				for _, source := range resp.Sources {
					rows = append(rows, []string{
						source.ID,
						source.Name,
						source.URL,
						source.State,
						strings.Join(source.LinkedProfileIDs, ", "),
						yesNo(source.UseCustom),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Name", "URL", "State", "Profiles", "Custom Settings"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}

func newSourceAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var url string
	var profileIDs []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a monitored source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SourceSave(ipc.Source{
					Name:             name,
					URL:              url,
					LinkedProfileIDs: profileIDs,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved source %s (%s)\n", resp.Source.Name, resp.Source.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the source")
	cmd.Flags().StringVar(&url, "url", "", "Live stream URL to monitor")
	cmd.Flags().StringSliceVar(&profileIDs, "profile", nil, "Publication profile id to link (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newSourceRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source-id>",
		Short: "Remove a monitored source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SourceRemove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", args[0])
				return nil
			})
		},
	}
}
