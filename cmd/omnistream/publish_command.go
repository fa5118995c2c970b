package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceID   string
		profileIDs []string
	)

	cmd := &cobra.Command{
		Use:   "publish [directory]",
		Short: "Upload recorded files from a source or a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" && len(args) == 0 {
				return fmt.Errorf("a directory argument or --source is required")
			}
			if sourceID != "" && len(args) > 0 {
				return fmt.Errorf("--source and a directory argument are mutually exclusive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var (
					resp *ipc.PublishResponse
					err  error
				)
				if sourceID != "" {
					resp, err = client.PublishSource(sourceID)
				} else {
					if len(profileIDs) == 0 {
						return fmt.Errorf("at least one --profile is required")
					}
					resp, err = client.Publish(args[0], profileIDs)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Publish started as task %s\n", resp.TaskID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Source id whose recordings and linked profiles to publish")
	cmd.Flags().StringSliceVar(&profileIDs, "profile", nil, "Publication profile id to upload under (repeatable)")
	return cmd
}
