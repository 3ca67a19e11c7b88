package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"studycal/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull provider feeds now",
	Long:  "Sync one user's connected feeds, or every connected user when --user is omitted.",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		out := cmd.OutOrStdout()
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			failed, err := a.syncer.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sync finished, %d user(s) failed\n", failed)
			return nil
		}

		res, err := a.syncer.SyncUser(cmd.Context(), user)
		providers := make([]string, 0, len(res.Stats))
		for p := range res.Stats {
			providers = append(providers, p)
		}
		slices.Sort(providers)
		for _, p := range providers {
			st := res.Stats[p]
			fmt.Fprintf(out, "%-8s created %d, updated %d, removed %d\n", p, st.Created, st.Updated, st.Removed)
		}
		for p, msg := range res.Errors {
			fmt.Fprintf(out, "%-8s failed: %s\n", p, msg)
		}
		return err
	}),
}

var connectCmd = &cobra.Command{
	Use:       "connect <canvas|google>",
	Short:     "Register a calendar feed for a user",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{model.ProviderCanvas, model.ProviderGoogle},
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		provider := args[0]
		if provider != model.ProviderCanvas && provider != model.ProviderGoogle {
			return fmt.Errorf("unknown provider %q", provider)
		}
		user, _ := cmd.Flags().GetString("user")
		feedURL, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")

		c, err := a.store.UpsertConnection(cmd.Context(), model.CalendarConnection{
			UserID:      user,
			Provider:    provider,
			FeedURL:     feedURL,
			AccessToken: token,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connected %s for %s (%s)\n", c.Provider, c.UserID, c.ID)
		return nil
	}),
}

func init() {
	syncCmd.Flags().String("user", "", "User ID to sync (default: all connected users)")

	connectCmd.Flags().String("user", "", "User ID")
	connectCmd.Flags().String("url", "", "ICS feed URL")
	connectCmd.Flags().String("token", "", "Bearer token sent with feed requests")
	_ = connectCmd.MarkFlagRequired("user")
	_ = connectCmd.MarkFlagRequired("url")
}
