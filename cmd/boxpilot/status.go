package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"boxpilot/internal/clashapi"
	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/vpn"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine, connection and VPN status",
	Long:  `Query the control API of a running engine. Requires a fixed api_secret in the config so a second process can authenticate.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		client := clashapi.NewClient(cfg.Engine.APIAddr, cfg.Engine.APISecret)
		version, err := client.Version(ctx)
		if err != nil {
			fmt.Fprintf(w, "Engine:\tnot running (%s unreachable)\n", cfg.Engine.APIAddr)
		} else {
			fmt.Fprintf(w, "Engine:\trunning, sing-box %s\n", version)

			if proxies, err := client.Proxies(ctx); err == nil && len(proxies) > 0 {
				names := make([]string, 0, len(proxies))
				for name := range proxies {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(w, "Proxies:\t%d\n", len(names))
				for _, name := range names {
					fmt.Fprintf(w, "\t%s (%s)\n", name, proxies[name].Type)
				}
			}

			if snap, err := client.Connections(ctx); err == nil {
				fmt.Fprintf(w, "Traffic:\t%s up / %s down\n",
					formatBytes(snap.UploadTotal), formatBytes(snap.DownloadTotal))
				fmt.Fprintf(w, "Connections:\t%d\n", len(snap.Connections))
				for _, c := range snap.Connections {
					host := c.Metadata.Host
					if host == "" {
						host = c.Metadata.DestinationIP
					}
					fmt.Fprintf(w, "\t%s:%s via %v\n", host, c.Metadata.DestinationPort, c.Chains)
				}
			}
		}

		if cfg.VPN.Enabled {
			prober := vpn.HostProber{}
			if prober.IsActive(cfg.VPN.ConnectionName) {
				fmt.Fprintf(w, "VPN:\t%s up\n", cfg.VPN.ConnectionName)
			} else {
				fmt.Fprintf(w, "VPN:\t%s down\n", cfg.VPN.ConnectionName)
			}
		}
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
