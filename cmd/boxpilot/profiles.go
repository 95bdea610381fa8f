package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/profile"
	"boxpilot/internal/subscription"
)

func openStore(cfg *config.Config) *profile.Store {
	store := profile.NewStore(cfg.ProfilesDir)
	if err := store.Load(); err != nil {
		logger.Log.Fatalf("Error loading profile store: %v", err)
	}
	return store
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tNAME\tSERVER\tLATENCY\tGROUP")
		for _, g := range store.Groups() {
			for _, e := range store.EntriesInGroup(g.ID) {
				latency := "-"
				if e.LatencyMs >= 0 {
					latency = fmt.Sprintf("%dms", e.LatencyMs)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Profile.Type, e.Profile.DisplayName(),
					e.Profile.DisplayAddress(), latency, g.Name)
			}
		}
		w.Flush()
	},
}

var flagRemoveGroup bool

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a profile (or a whole group with --group)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)

		id, err := strconv.Atoi(args[0])
		if err != nil {
			logger.Log.Fatalf("Invalid id %q", args[0])
		}

		if flagRemoveGroup {
			if !store.RemoveGroup(id) {
				logger.Log.Fatalf("Group %d cannot be removed", id)
			}
		} else if !store.Remove(id) {
			logger.Log.Fatalf("Profile %d does not exist", id)
		}

		if err := store.Save(); err != nil {
			logger.Log.Fatalf("Error saving profile store: %v", err)
		}
	},
}

var flagSubName string

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Manage subscription groups",
}

var subAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Create a subscription group and fetch it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)

		name := flagSubName
		if name == "" {
			name = fmt.Sprintf("Subscription %d", len(store.Groups()))
		}
		group := store.AddGroup(name, true)
		group.SubscriptionURL = args[0]

		updater := subscription.NewUpdater(store, cfg.Subscription)
		n, err := updater.Update(context.Background(), group.ID)
		if err != nil {
			logger.Log.Fatalf("Subscription fetch failed: %v", err)
		}
		fmt.Printf("Group %d %q: %d profiles\n", group.ID, group.Name, n)
	},
}

var subUpdateCmd = &cobra.Command{
	Use:   "update [group-id]",
	Short: "Refresh one subscription group, or all of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)
		updater := subscription.NewUpdater(store, cfg.Subscription)

		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				logger.Log.Fatalf("Invalid group id %q", args[0])
			}
			n, err := updater.Update(context.Background(), id)
			if err != nil {
				logger.Log.Fatalf("Update failed: %v", err)
			}
			fmt.Printf("%d profiles\n", n)
			return
		}

		n := updater.UpdateAll(context.Background())
		fmt.Printf("%d profiles across all subscriptions\n", n)
	},
}

func init() {
	removeCmd.Flags().BoolVar(&flagRemoveGroup, "group", false, "Treat the id as a group id and remove the whole group")
	subAddCmd.Flags().StringVar(&flagSubName, "name", "", "Group name (default is auto-generated)")

	subCmd.AddCommand(subAddCmd)
	subCmd.AddCommand(subUpdateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(subCmd)
}
