package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
	"omnistream/internal/store"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage publication profiles",
	}

	profileCmd.AddCommand(newProfileListCommand(ctx))
	profileCmd.AddCommand(newProfileAddCommand(ctx))
	profileCmd.AddCommand(newProfileRemoveCommand(ctx))

	return profileCmd
}

func newProfileListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List publication profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProfileList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Profiles) == 0 {
					fmt.Fprintln(stdout, "No profiles configured")
					return nil
				}

				rows := make([][]string, 0, len(resp.Profiles))
				for _, profile := range resp.Profiles {
					rows = append(rows, []string{
						profile.ID,
						profile.Name,
						profile.Config.Title,
						strings.Join(profile.Config.Tags, ", "),
						fmt.Sprintf("%d", profile.Config.Tid),
						profile.Config.AccountFile,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Name", "Title Template", "Tags", "Tid", "Account File"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}

func newProfileAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var title string
	var tags []string
	var tid int
	var copyright int
	var description string
	var dynamic string
	var accountFile string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a publication profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProfileSave(ipc.Profile{
					Name: name,
					Config: store.UploadConfig{
						Title:       title,
						Tags:        tags,
						Tid:         tid,
						Copyright:   copyright,
						Description: description,
						Dynamic:     dynamic,
						AccountFile: accountFile,
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s (%s)\n", resp.Profile.Name, resp.Profile.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the profile")
	cmd.Flags().StringVar(&title, "title", "", "Video title template ({title} expands to the live title)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Video tag (repeatable)")
	cmd.Flags().IntVar(&tid, "tid", 0, "Partition id (defaults to 171)")
	cmd.Flags().IntVar(&copyright, "copyright", 0, "Copyright flag (defaults to 1, original)")
	cmd.Flags().StringVar(&description, "description", "", "Video description")
	cmd.Flags().StringVar(&dynamic, "dynamic", "", "Dynamic text posted with the upload")
	cmd.Flags().StringVar(&accountFile, "account-file", "", "Credential file (defaults to cookies.json)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProfileRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <profile-id>",
		Short: "Remove a publication profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ProfileRemove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s\n", args[0])
				return nil
			})
		},
	}
}
