package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"omnistream/internal/ipc"
	"omnistream/internal/store"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change global capture settings",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))

	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current capture settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SettingsGet()
				if err != nil {
					return err
				}
				printSettings(cmd, resp.Settings)
				return nil
			})
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var segmentSizeMB int64
	var segmentTimeSec int64
	var cleanup bool
	var quality store.QualityConfig

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update capture settings (unset flags keep their current values)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				current, err := client.SettingsGet()
				if err != nil {
					return err
				}
				settings := current.Settings

				flags := cmd.Flags()
				if flags.Changed("segment-size") {
					settings.SegmentSizeMB = segmentSizeMB
				}
				if flags.Changed("segment-time") {
					settings.SegmentTimeSec = segmentTimeSec
				}
				if flags.Changed("cleanup") {
					settings.CleanupAfterPublish = cleanup
				}
				if flags.Changed("quality-bilibili") {
					settings.Quality.Bilibili = quality.Bilibili
				}
				if flags.Changed("quality-douyu") {
					settings.Quality.Douyu = quality.Douyu
				}
				if flags.Changed("quality-huya") {
					settings.Quality.Huya = quality.Huya
				}
				if flags.Changed("quality-twitch") {
					settings.Quality.Twitch = quality.Twitch
				}
				if flags.Changed("quality-youtube") {
					settings.Quality.YouTube = quality.YouTube
				}
				if flags.Changed("quality-default") {
					settings.Quality.Default = quality.Default
				}

				resp, err := client.SettingsSet(ipc.SettingsSetRequest{Settings: settings})
				if err != nil {
					return err
				}
				printSettings(cmd, resp.Settings)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&segmentSizeMB, "segment-size", 0, "Segment size ceiling in MB (0 disables size rotation)")
	cmd.Flags().Int64Var(&segmentTimeSec, "segment-time", 0, "Segment duration ceiling in seconds (0 disables time rotation)")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Delete local files after successful publication")
	cmd.Flags().StringVar(&quality.Bilibili, "quality-bilibili", "", "Stream quality for bilibili sources")
	cmd.Flags().StringVar(&quality.Douyu, "quality-douyu", "", "Stream quality for douyu sources")
	cmd.Flags().StringVar(&quality.Huya, "quality-huya", "", "Stream quality for huya sources")
	cmd.Flags().StringVar(&quality.Twitch, "quality-twitch", "", "Stream quality for twitch sources")
	cmd.Flags().StringVar(&quality.YouTube, "quality-youtube", "", "Stream quality for youtube sources")
	cmd.Flags().StringVar(&quality.Default, "quality-default", "", "Stream quality for unrecognized platforms")
	return cmd
}

func printSettings(cmd *cobra.Command, settings store.CaptureSettings) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Segment size: %s\n", limitMB(settings.SegmentSizeMB))
	fmt.Fprintf(stdout, "Segment time: %s\n", limitSec(settings.SegmentTimeSec))
	fmt.Fprintf(stdout, "Cleanup after publish: %s\n", yesNo(settings.CleanupAfterPublish))
	fmt.Fprintln(stdout, renderTable(
		[]string{"Platform", "Quality"},
		[][]string{
			{"bilibili", settings.Quality.Bilibili},
			{"douyu", settings.Quality.Douyu},
			{"huya", settings.Quality.Huya},
			{"twitch", settings.Quality.Twitch},
			{"youtube", settings.Quality.YouTube},
			{"default", settings.Quality.Default},
		},
		nil,
	))
}

func limitMB(value int64) string {
	if value <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d MB", value)
}

func limitSec(value int64) string {
	if value <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d s", value)
}
