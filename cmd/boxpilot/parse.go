package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"boxpilot/internal/config"
	"boxpilot/internal/link"
	"boxpilot/internal/logger"
	"boxpilot/internal/profile"
)

var (
	flagParseSave  bool
	flagParseGroup int
)

var parseCmd = &cobra.Command{
	Use:   "parse <link>...",
	Short: "Parse share links into normalized profiles",
	Long:  `Parse one or more share links (vless://, vmess://, trojan://, ss://, socks://, http://) and print the normalized profile. Use --save to add them to the store.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}

		var store *profile.Store
		if flagParseSave {
			store = profile.NewStore(cfg.ProfilesDir)
			if err := store.Load(); err != nil {
				logger.Log.Fatalf("Error loading profile store: %v", err)
			}
		}

		failures := 0
		for _, raw := range args {
			p, err := link.Parse(raw)
			if err != nil {
				logger.Log.Errorf("Parse failed: %v", err)
				failures++
				continue
			}

			if store != nil {
				entry := store.Add(p, flagParseGroup)
				fmt.Printf("Added profile %d: %s\n", entry.ID, p.DisplayName())
				continue
			}

			out, _ := json.MarshalIndent(p, "", "  ")
			fmt.Println(string(out))
			fmt.Println(link.ToURI(p))
		}

		if store != nil {
			if err := store.Save(); err != nil {
				logger.Log.Fatalf("Error saving profile store: %v", err)
			}
		}
		if failures > 0 {
			logger.Log.Fatalf("%d of %d links failed to parse", failures, len(args))
		}
	},
}

func init() {
	parseCmd.Flags().BoolVar(&flagParseSave, "save", false, "Add the parsed profiles to the store")
	parseCmd.Flags().IntVar(&flagParseGroup, "group", profile.DefaultGroupID, "Target group id for --save")
	rootCmd.AddCommand(parseCmd)
}
