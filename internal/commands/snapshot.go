package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"studycal/internal/capture"
	"studycal/internal/web"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save the week page of a running server as a PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		base, _ := cmd.Flags().GetString("url")
		if base == "" {
			base = "http://" + cfg.Listen
		}
		day, _ := cmd.Flags().GetString("date")
		outPath, _ := cmd.Flags().GetString("out")
		user, _ := cmd.Flags().GetString("user")
		token, _ := cmd.Flags().GetString("token")
		width, _ := cmd.Flags().GetInt("width")
		height, _ := cmd.Flags().GetInt("height")

		target, err := capture.WeekURL(base, day)
		if err != nil {
			return err
		}
		headers := map[string]string{}
		switch {
		case token != "":
			headers["Authorization"] = "Bearer " + token
		case user != "":
			headers[web.UserHeader] = user
		default:
			return fmt.Errorf("snapshot needs --user or --token")
		}

		if err := capture.Snapshot(cmd.Context(), capture.Options{
			URL:        target,
			OutputPath: outPath,
			Width:      width,
			Height:     height,
			Headers:    headers,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().String("url", "", "Base URL of the server (default: http://<listen>)")
	snapshotCmd.Flags().String("date", "", "Any day of the week to capture, YYYY-MM-DD")
	snapshotCmd.Flags().String("out", "week.png", "Output PNG path")
	snapshotCmd.Flags().String("user", "", "User ID sent as "+web.UserHeader)
	snapshotCmd.Flags().String("token", "", "Bearer token (instead of --user)")
	snapshotCmd.Flags().Int("width", 0, "Viewport width in pixels")
	snapshotCmd.Flags().Int("height", 0, "Viewport height in pixels")
}
