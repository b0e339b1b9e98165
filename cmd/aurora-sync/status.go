package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aurora-dispenser/aurora-sync/internal/statusfeed"
	"github.com/aurora-dispenser/aurora-sync/internal/ui"
)

var (
	feedAddr   string
	statusJSON bool
)

func init() {
	statusCmd.Flags().StringVar(&feedAddr, "addr", "", "Status feed address (default: status.listen)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")
	watchCmd.Flags().StringVar(&feedAddr, "addr", "", "Status feed address (default: status.listen)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running client",
	Long: `Connect to the status feed of a running 'aurora-sync run' and print one
snapshot: pairing state, link, schedule version, next dose and the last poll.

The client must have been started with --status-listen (or status.listen).`,
	Example: `  # Feed on the address from the config file
  aurora-sync status

  # Another device on the network
  aurora-sync status --addr 10.0.0.40:8787`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the status of a running client live",
	Long: `Open a full-screen view of a running client's status feed. The view
updates on every pairing change and poll cycle.

Keys: s toggles the schedule, ? shows help, q quits.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func resolveFeedAddr() (string, error) {
	if feedAddr != "" {
		return feedAddr, nil
	}
	if cfg.Status.Listen != "" {
		return cfg.Status.Listen, nil
	}
	return "", fmt.Errorf("no status feed address: pass --addr or set status.listen")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, err := resolveFeedAddr()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusfeed.DefaultDialTimeout)
	defer cancel()

	st, err := statusfeed.Fetch(ctx, addr)
	if err != nil {
		return fmt.Errorf("is 'aurora-sync run' serving a status feed at %s? %w", addr, err)
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(os.Stdout, st, time.Now())
	return nil
}

// printStatus writes a plain coloured summary; color disables itself when
// stdout is not a terminal.
func printStatus(w io.Writer, st statusfeed.Status, now time.Time) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	label := func(name string) { bold.Fprintf(w, "%-10s ", name+":") }

	label("Device")
	fmt.Fprintf(w, "%s -> %s\n", st.Serial, st.Backend)

	label("Pairing")
	switch st.Pairing {
	case "paired":
		good.Fprintln(w, st.Pairing)
	case "conflict":
		bad.Fprintln(w, st.Pairing+" (run 'aurora-sync secret --help')")
	default:
		warn.Fprintln(w, st.Pairing)
	}

	label("Link")
	if st.LinkUp {
		good.Fprintln(w, "up")
	} else {
		bad.Fprintln(w, "down")
	}

	label("Schedule")
	fmt.Fprintf(w, "v%d, %d containers, %d entries\n", st.ScheduleVersion, st.Containers, st.Entries)

	if st.NextDue != nil {
		label("Next dose")
		fmt.Fprintf(w, "%s (slot %d) at %s\n", st.NextDue.Pill, st.NextDue.Slot, st.NextDue.At.Local().Format("Mon 15:04"))
	}

	label("Last poll")
	switch {
	case st.LastPoll == nil:
		warn.Fprintln(w, "none yet")
	case st.LastPoll.Outcome == "failed":
		bad.Fprintf(w, "%s %s ago: %s\n", st.LastPoll.Outcome, now.Sub(st.LastPoll.At).Round(time.Second), st.LastPoll.Error)
	case st.LastPoll.Outcome == "applied":
		good.Fprintf(w, "%s %s ago\n", st.LastPoll.Outcome, now.Sub(st.LastPoll.At).Round(time.Second))
	default:
		warn.Fprintf(w, "%s %s ago\n", st.LastPoll.Outcome, now.Sub(st.LastPoll.At).Round(time.Second))
	}

	label("Polls")
	fmt.Fprintf(w, "%d (%d failed), every %s\n", st.Cycles, st.Failures, st.PollInterval)
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr, err := resolveFeedAddr()
	if err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs a terminal; use 'aurora-sync status' instead")
	}

	ctx, stop := signalContext()
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, statusfeed.DefaultDialTimeout)
	sub, err := statusfeed.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		return fmt.Errorf("is 'aurora-sync run' serving a status feed at %s? %w", addr, err)
	}
	defer sub.Close()

	return ui.RunWatch(ctx, sub)
}
