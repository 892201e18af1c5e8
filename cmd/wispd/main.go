package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwisp/wisp/pkg/api"
	"github.com/cloudwisp/wisp/pkg/config"
	"github.com/cloudwisp/wisp/pkg/device"
	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/manager"
	"github.com/cloudwisp/wisp/pkg/metrics"
	"github.com/cloudwisp/wisp/pkg/monitor"
	"github.com/cloudwisp/wisp/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wispd",
	Short: "wisp - multi-site hotspot controller orchestration",
	Long: `wisp manages a fleet of captive-portal access controllers across
multiple sites, keeping per-site connectivity and user state in view
and fanning provisioning changes out with partial-failure semantics.`,
	Version: Version,
}

var managerAddr string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wisp version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&managerAddr, "manager", "127.0.0.1:8480",
		"address of the wispd admin API")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(bandwidthCmd)
	rootCmd.AddCommand(tokenCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator",
	Long: `Start the wisp orchestrator: open the site registry, begin the
per-site connectivity monitor, and serve the admin API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogFormat == "json",
		})
		metrics.Register()

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		dialer := device.NewDialer(device.Options{
			Timeout:  cfg.DeviceTimeout,
			CacheTTL: cfg.CacheTTL,
		})

		mgr := manager.NewManager(manager.Config{
			Store:    store,
			Dialer:   dialer,
			Broker:   broker,
			TokenTTL: cfg.TokenTTL,
		})

		mon := monitor.NewMonitor(store, monitor.NewDeviceProber(dialer), broker, monitor.Config{
			Interval: cfg.ProbeInterval,
			Timeout:  cfg.ProbeTimeout,
		})
		mon.Start()
		fmt.Println("✓ Connectivity monitor started")

		cleanupStop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mgr.Tokens().CleanupExpired()
				case <-cleanupStop:
					return
				}
			}
		}()

		apiServer := api.NewServer(mgr, broker)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(cfg.APIAddr); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()
		fmt.Printf("✓ Admin API on %s\n", cfg.APIAddr)

		fmt.Println()
		fmt.Println("Orchestrator is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		close(cleanupStop)
		apiServer.Stop()
		mon.Stop()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to YAML config file")
}
