package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/monitor"
	"boxpilot/internal/profile"
	"boxpilot/internal/singbox"
	"boxpilot/internal/supervisor"
	"boxpilot/internal/vpn"
)

var flagRunProfile int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine with one profile and keep it supervised",
	Long:  `Compile the selected profile (or the fastest known one) into a run config, start the engine and watch its health until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)

		entry := selectEntry(store, flagRunProfile)
		if entry == nil {
			logger.Log.Fatalf("No usable profile in the store. Add one with 'boxpilot parse --save <link>'.")
		}
		logger.Log.Infof("Selected profile %d: %s", entry.ID, entry.Profile.DisplayName())

		entry.LastUsed = time.Now().Unix()
		if err := store.Save(); err != nil {
			logger.Log.Warnf("Saving profile store failed: %v", err)
		}

		// Per-profile overrides win over the global config.
		routing := cfg.Routing
		if entry.Routing != nil {
			routing = *entry.Routing
		}
		routing.LoadLists(cfg.ProfilesDir)
		vpnSettings := cfg.VPN
		if entry.VPN != nil {
			vpnSettings = *entry.VPN
		}

		outbound, err := singbox.Compile(entry.Profile, singbox.Options{})
		if err != nil {
			logger.Log.Fatalf("Profile does not compile: %v", err)
		}

		prober := vpn.HostProber{}
		runConfig := singbox.BuildRunConfig(singbox.BuildParams{
			LogLevel:  cfg.LogLevel,
			Listen:    cfg.Inbound.Listen,
			Port:      cfg.Inbound.Port,
			Routing:   routing,
			VPN:       vpnSettings,
			DNS:       cfg.DNS,
			Prober:    prober,
			Outbounds: []map[string]any{outbound},
			ProxyTag:  entry.Profile.DisplayName(),
		})

		sup := supervisor.New(cfg.Engine)
		ctx := context.Background()
		if err := sup.Start(ctx, runConfig); err != nil {
			logger.Log.Fatalf("Engine start failed: %v", err)
		}
		fmt.Printf("Engine %s running, mixed inbound on %s:%d\n",
			sup.Version(), cfg.Inbound.Listen, cfg.Inbound.Port)

		mon := monitor.New(sup, prober, cfg)
		mon.Subscribe(func(st monitor.Status) {
			if !st.ProxyOK {
				logger.Log.Warnf("Proxy unhealthy: %s", st.ProxyErr)
			}
			if !st.VPNOK {
				logger.Log.Warnf("VPN unhealthy: %s", st.VPNErr)
			}
		})
		mon.Start()

		stopped := make(chan struct{}, 1)
		sup.OnStop(func() {
			select {
			case stopped <- struct{}{}:
			default:
			}
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sig:
			logger.Log.Info("Shutting down")
		case <-stopped:
			logger.Log.Error("Engine stopped on its own")
		}

		mon.Stop()
		sup.Stop()
	},
}

// selectEntry picks an explicit id, or the entry with the best known
// latency, or the first entry.
func selectEntry(store *profile.Store, id int) *profile.Entry {
	if id > 0 {
		return store.Get(id)
	}

	var best *profile.Entry
	for _, e := range store.Entries() {
		if best == nil {
			best = e
			continue
		}
		if e.LatencyMs >= 0 && (best.LatencyMs < 0 || e.LatencyMs < best.LatencyMs) {
			best = e
		}
	}
	return best
}

func init() {
	runCmd.Flags().IntVar(&flagRunProfile, "profile", 0, "Profile id to run (default is the fastest tested one)")
	rootCmd.AddCommand(runCmd)
}
