package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurora-dispenser/aurora-sync/internal/app"
	"github.com/aurora-dispenser/aurora-sync/internal/backend"
	"github.com/aurora-dispenser/aurora-sync/internal/config"
	"github.com/aurora-dispenser/aurora-sync/internal/discovery"
	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/ui"
)

// Command flags
var (
	forcePair    bool
	fetchJSON    bool
	eventStatus  string
	eventAt      string
	eventSlot    int
	eventSchedID int
	scanTimeout  time.Duration
	overwriteCfg bool
)

func init() {
	rootCmd.PersistentFlags().String("link-interface", "", "Network interface whose state gates requests (default: any)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(postEventCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp validates the loaded configuration and builds the client.
func openApp(ctx context.Context) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return app.New(ctx, cfg, app.Deps{})
}

// reportSyncError prints a backend failure with its troubleshooting hint.
func reportSyncError(title string, err error) error {
	printer := ui.NewPrinter(os.Stderr)
	printer.PrintError(title, err, ui.SplitHint(backend.TroubleshootingHint(err)))
	return errReported
}

// runCmd starts the poll loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync client",
	Long: `Run the sync client until interrupted.

The client pairs with the backend if it holds no device secret, then fetches
the configuration immediately and again every poll interval. Requests are only
sent while the network link is up.

With --status-listen the current status is pushed to websocket subscribers
(see 'aurora-sync status' and 'aurora-sync watch'). With --watch-credentials
an operator-restored secret is picked up without a restart.`,
	Example: `  # Poll every 30 seconds (default)
  aurora-sync run --base-url http://10.0.0.2:8000 --serial SN-0001

  # Serve the status feed and log at info level
  aurora-sync run --status-listen :8787 --log-level info`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Duration("interval", 30*time.Second, "Time between configuration fetches")
	runCmd.Flags().String("status-listen", "", "Address for the status feed, e.g. :8787 (default: disabled)")
	runCmd.Flags().Bool("watch-credentials", false, "Reload the secret when the credential file changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// pairCmd establishes the device secret
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair the device with the backend",
	Long: `Make sure the device holds a secret accepted by the backend.

A previously stored secret is used as is. Otherwise the device requests one
from the backend and stores it before reporting success.

If the backend answers 409 the device was paired before and its secret was
lost. Either reset the pairing on the backend and run 'aurora-sync pair
--force', or restore the secret with 'aurora-sync secret restore'.`,
	Example: `  # Pair if needed
  aurora-sync pair

  # Retry after the backend pairing was reset
  aurora-sync pair --force`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().BoolVar(&forcePair, "force", false, "Send the pairing request even after a conflict")
}

func runPair(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if forcePair {
		err = a.Pairing().PairDevice(ctx)
	} else {
		err = a.Pair(ctx)
	}
	if err != nil {
		return reportSyncError("Pairing failed", err)
	}

	secret, _ := a.Pairing().Secret()
	ui.NewPrinter(os.Stdout).PrintSuccess("Device paired", []ui.Detail{
		{Key: "Serial", Value: a.Endpoints().Serial()},
		{Key: "Backend", Value: a.Endpoints().Base()},
		{Key: "State", Value: a.Pairing().State().String()},
		{Key: "Secret", Value: logging.MaskSecret(secret)},
	})
	return nil
}

// fetchCmd performs one configuration fetch
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the configuration once and print the schedule",
	Long: `Perform one authenticated configuration fetch and print the result.

Pairs first when no secret is stored.`,
	Example: `  # Human-readable schedule
  aurora-sync fetch

  # Machine-readable status snapshot
  aurora-sync fetch --json`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print the status snapshot as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Fetch(ctx); err != nil {
		return reportSyncError("Configuration fetch failed", err)
	}

	st := a.Status()
	if fetchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	printer := ui.NewPrinter(os.Stdout)
	printer.Println(ui.RenderStatus(st, time.Now(), printer.Width()))
	return nil
}

// postEventCmd reports one dispensing event
var postEventCmd = &cobra.Command{
	Use:   "post-event",
	Short: "Report one dispensing event",
	Long: `Report one dispensing event to the backend.

--slot and --schedule-id are omitted from the report when negative.
--at defaults to now and accepts RFC 3339 timestamps.`,
	Example: `  # A dose taken from slot 1, schedule entry 7
  aurora-sync post-event --status dispensed --slot 1 --schedule-id 7

  # A missed dose at a given time
  aurora-sync post-event --status missed --at 2024-01-01T08:00:00Z`,
	RunE: runPostEvent,
}

func init() {
	postEventCmd.Flags().StringVar(&eventStatus, "status", "", "Event status, e.g. dispensed, missed, error (required)")
	postEventCmd.Flags().StringVar(&eventAt, "at", "", "When it happened, RFC 3339 (default: now)")
	postEventCmd.Flags().IntVar(&eventSlot, "slot", -1, "Container slot number")
	postEventCmd.Flags().IntVar(&eventSchedID, "schedule-id", -1, "Schedule entry id")
	_ = postEventCmd.MarkFlagRequired("status")
}

func runPostEvent(cmd *cobra.Command, args []string) error {
	ev, err := buildEvent(eventStatus, eventAt, eventSlot, eventSchedID, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.PostEvent(ctx, ev); err != nil {
		return reportSyncError("Event not delivered", err)
	}
	fmt.Printf("Event %q delivered.\n", ev.Status)
	return nil
}

// buildEvent turns post-event flags into an Event.
func buildEvent(status, at string, slot, scheduleID int, now time.Time) (backend.Event, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return backend.Event{}, fmt.Errorf("--status must not be empty")
	}

	occurred := now
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return backend.Event{}, fmt.Errorf("invalid --at %q: %w", at, err)
		}
		occurred = t
	}

	ev := backend.NewEvent(status, occurred)
	if slot >= 0 {
		ev.ContainerSlot = slot
	}
	if scheduleID >= 0 {
		ev.ScheduleID = scheduleID
	}
	return ev, nil
}

// discoverCmd lists backends advertised over mDNS
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Aurora backends on the local network",
	Long: `Browse for Aurora backends advertised over mDNS/DNS-SD.

Each result prints the base URL and API prefix to put in the config file.
Setting backend.discover instead lets the client do this on every start.`,
	Example: `  # Browse for 5 seconds (default)
  aurora-sync discover

  # Longer browse for slow networks
  aurora-sync discover --scan-timeout 15s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to browse")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Browsing for %s (timeout: %s)...\n\n", discovery.ServiceType, scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	services, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(services) == 0 {
		fmt.Println("No backends found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that the backend advertises " + discovery.ServiceType)
		fmt.Println("  - Make sure this device is on the same network segment")
		fmt.Println("  - Try increasing --scan-timeout")
		fmt.Println("  - Set backend.base_url manually if multicast is blocked")
		return nil
	}

	fmt.Printf("Found %d backend(s):\n\n", len(services))
	for i, svc := range services {
		fmt.Printf("%d. %s\n", i+1, svc.Instance)
		fmt.Printf("   base_url:   %s\n", svc.BaseURL())
		fmt.Printf("   api_prefix: %s\n", svc.APIPrefix)
		fmt.Printf("   host:       %s\n", svc.Hostname)
		fmt.Println()
	}
	return nil
}

// configCmd groups config file helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with every setting at its default.

Without a path the file goes to the default location. Edit device.serial and
backend.base_url before running the client.`,
	Args: cobra.MaximumNArgs(1),
	// The target file need not exist yet, so nothing is loaded.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, the env file,
environment variables and flags have been applied.`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&overwriteCfg, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := config.WriteDefault(path, overwriteCfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "\nThis configuration cannot run the client:\n%v\n", err)
	}
	return nil
}
