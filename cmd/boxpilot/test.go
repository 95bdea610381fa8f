package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"boxpilot/internal/config"
	"boxpilot/internal/db"
	"boxpilot/internal/geoip"
	"boxpilot/internal/logger"
	"boxpilot/internal/profile"
	"boxpilot/internal/singbox"
	"boxpilot/internal/supervisor"
	"boxpilot/internal/vpn"
)

var (
	flagTestGroup   int
	flagTestWorkers int
	flagTestTimeout time.Duration
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Measure latency of every stored profile",
	Long:  `Compile all profiles into one run config, start the engine once and run a delay test against each outbound through the control API. Results are saved to the store and the history database.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Log.Fatalf("Error loading config: %v", err)
		}
		store := openStore(cfg)

		entries := store.Entries()
		if flagTestGroup >= 0 {
			entries = store.EntriesInGroup(flagTestGroup)
		}
		if len(entries) == 0 {
			logger.Log.Fatalf("No profiles to test")
		}

		if err := geoip.Init(cfg.GeoIP.CountryPath); err != nil {
			logger.Log.Warnf("GeoIP unavailable: %v", err)
		}
		defer geoip.Close()

		database, err := db.Connect(cfg.Database.Path)
		if err != nil {
			logger.Log.Fatalf("Error connecting to DB: %v", err)
		}
		defer db.Close(database)
		if err := db.Migrate(database); err != nil {
			logger.Log.Fatalf("Error migrating DB: %v", err)
		}

		// 1. Compile everything into one config, with unique tags.
		tags := make(map[*profile.Entry]string, len(entries))
		seen := make(map[string]bool)
		var outbounds []map[string]any
		var testable []*profile.Entry

		for _, e := range entries {
			o, err := singbox.Compile(e.Profile, singbox.Options{})
			if err != nil {
				logger.Log.Warnf("Skipping profile %d: %v", e.ID, err)
				e.LatencyMs = -1
				continue
			}
			tag := o["tag"].(string)
			if seen[tag] {
				tag = fmt.Sprintf("%s #%d", tag, e.ID)
				o["tag"] = tag
			}
			seen[tag] = true
			tags[e] = tag
			outbounds = append(outbounds, o)
			testable = append(testable, e)
		}
		if len(testable) == 0 {
			logger.Log.Fatalf("No profile compiled successfully")
		}

		// DNS must not depend on the proxies under test.
		dnsSettings := cfg.DNS
		dnsSettings.UseProxy = false

		runConfig := singbox.BuildRunConfig(singbox.BuildParams{
			LogLevel:  cfg.LogLevel,
			Listen:    cfg.Inbound.Listen,
			Port:      cfg.Inbound.Port,
			Routing:   config.RoutingSettings{Mode: config.RouteBypassLocal},
			DNS:       dnsSettings,
			Prober:    vpn.Nop{},
			Outbounds: outbounds,
			ProxyTag:  tags[testable[0]],
		})

		// 2. One engine for the whole batch.
		sup := supervisor.New(cfg.Engine)
		ctx := context.Background()
		if err := sup.Start(ctx, runConfig); err != nil {
			logger.Log.Fatalf("Engine start failed: %v", err)
		}
		defer sup.Stop()

		// Tags missing from the engine would only show up as timeouts.
		registered := sup.Proxies(ctx)
		for _, e := range testable {
			if _, ok := registered[tags[e]]; !ok {
				logger.Log.Warnf("Engine did not register outbound %q", tags[e])
			}
		}

		bar := progressbar.NewOptions(len(testable),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(15),
			progressbar.OptionSetDescription("[cyan]Testing...[reset]"),
			progressbar.OptionSetWriter(os.Stderr),
		)

		// 3. Delay tests through the control API.
		workers := flagTestWorkers
		if workers <= 0 {
			workers = 5
		}
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		var alive int
		var aliveMu sync.Mutex

		for _, e := range testable {
			wg.Add(1)
			sem <- struct{}{}
			go func(entry *profile.Entry) {
				defer wg.Done()
				defer func() { <-sem; bar.Add(1) }()

				delay := sup.TestDelay(ctx, tags[entry], cfg.Monitoring.TestURL, flagTestTimeout)
				entry.LatencyMs = delay

				rec := &db.DelayRecord{
					Fingerprint: entry.Profile.Fingerprint(),
					Tag:         tags[entry],
					Server:      entry.Profile.Server,
					Country:     geoip.Country(entry.Profile.Server),
					DelayMs:     delay,
				}
				if err := db.RecordDelay(database, rec); err != nil {
					logger.Log.Warnf("Recording delay for %q failed: %v", tags[entry], err)
				}

				if delay >= 0 {
					aliveMu.Lock()
					alive++
					bar.Describe(fmt.Sprintf("[cyan]Alive: %d[reset]", alive))
					aliveMu.Unlock()
				}
			}(e)
		}
		wg.Wait()
		bar.Finish()
		fmt.Print("\n")

		if err := store.Save(); err != nil {
			logger.Log.Fatalf("Error saving profile store: %v", err)
		}
		logger.Log.Infof("Tested %d profiles, %d alive", len(testable), alive)

		printResults(testable, tags)
	},
}

func printResults(entries []*profile.Entry, tags map[*profile.Entry]string) {
	sorted := append([]*profile.Entry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].LatencyMs, sorted[j].LatencyMs
		if (a < 0) != (b < 0) {
			return a >= 0
		}
		return a < b
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAG\tSERVER\tDELAY")
	for _, e := range sorted {
		delay := "timeout"
		if e.LatencyMs >= 0 {
			delay = fmt.Sprintf("%dms", e.LatencyMs)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, tags[e], e.Profile.DisplayAddress(), delay)
	}
	w.Flush()
}

func init() {
	testCmd.Flags().IntVar(&flagTestGroup, "group", -1, "Only test profiles in this group")
	testCmd.Flags().IntVar(&flagTestWorkers, "workers", 5, "Concurrent delay tests")
	testCmd.Flags().DurationVar(&flagTestTimeout, "timeout", 5*time.Second, "Per-profile test timeout")
	rootCmd.AddCommand(testCmd)
}
