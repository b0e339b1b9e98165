package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aurora-dispenser/aurora-sync/internal/backend"
	"github.com/aurora-dispenser/aurora-sync/internal/credential"
	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/ui"
)

var (
	secretFromStdin bool
	forgetYes       bool
)

func init() {
	secretRestoreCmd.Flags().BoolVar(&secretFromStdin, "stdin", false, "Read the secret from standard input")
	secretForgetCmd.Flags().BoolVarP(&forgetYes, "yes", "y", false, "Do not ask for confirmation")

	secretCmd.AddCommand(secretRestoreCmd)
	secretCmd.AddCommand(secretForgetCmd)
	secretCmd.AddCommand(secretShowCmd)
	rootCmd.AddCommand(secretCmd)
}

// secretCmd groups operator actions on the stored device secret. They work
// offline against the credential store.
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the stored device secret",
	Long: `Manage the device secret held in the credential store.

These commands are how an operator clears a pairing conflict: when the backend
answers 409 the device was paired before and lost its secret. Restore the
secret from the backend records, or forget it and reset the pairing on the
backend so that the next run pairs again.

A running client picks up the change at its next restart, or immediately when
started with --watch-credentials.`,
}

var secretRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Store a device secret supplied by the operator",
	Example: `  # Prompt for the secret without echoing it
  aurora-sync secret restore

  # Pipe it in
  printf '%s' "$SECRET" | aurora-sync secret restore --stdin`,
	Args: cobra.NoArgs,
	RunE: runSecretRestore,
}

var secretForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the stored device secret",
	Args:  cobra.NoArgs,
	RunE:  runSecretForget,
}

var secretShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show whether a secret is stored (masked)",
	Args:  cobra.NoArgs,
	RunE:  runSecretShow,
}

// openStore opens the configured credential store. The caller closes it.
func openStore() (credential.Store, func(), error) {
	if cfg.Credential.Path != "" && cfg.Credential.Backend != credential.BackendKeyring {
		if err := os.MkdirAll(filepath.Dir(cfg.Credential.Path), 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create credential directory: %w", err)
		}
	}
	store, err := credential.Open(cfg.CredentialOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	closeFn := func() {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return store, closeFn, nil
}

func runSecretRestore(cmd *cobra.Command, args []string) error {
	secret, err := readSecret(os.Stdin, secretFromStdin)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := backend.NewPairing(nil, store).Restore(secret); err != nil {
		return reportSyncError("Secret not restored", err)
	}

	ui.NewPrinter(os.Stdout).PrintSuccess("Device secret restored", []ui.Detail{
		{Key: "Store", Value: storeLabel()},
		{Key: "Secret", Value: logging.MaskSecret(secret)},
	})
	return nil
}

// readSecret reads one line from in. A terminal is prompted without echo
// unless fromStdin is set.
func readSecret(in *os.File, fromStdin bool) (string, error) {
	fd := int(in.Fd())
	if !fromStdin && term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Device secret: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return trimSecret(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return trimSecret(line)
}

func trimSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("no secret given")
	}
	return s, nil
}

func runSecretForget(cmd *cobra.Command, args []string) error {
	if !forgetYes {
		ok, err := ui.Confirm(os.Stdin, os.Stderr, "FORGET DEVICE SECRET", []string{
			"The secret in " + storeLabel() + " will be deleted",
			"The backend will answer 409 to the next pairing request",
			"Reset the device pairing on the backend before running the client again",
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := backend.NewPairing(nil, store).Forget(); err != nil {
		return reportSyncError("Secret not deleted", err)
	}
	fmt.Printf("Device secret deleted from %s.\n", storeLabel())
	return nil
}

func runSecretShow(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	secret, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to read device secret: %w", err)
	}

	state := "unpaired"
	if secret != "" {
		state = "stored"
	}
	fmt.Printf("store:  %s\nstate:  %s\nsecret: %s\n", storeLabel(), state, logging.MaskSecret(secret))
	return nil
}

func storeLabel() string {
	if cfg.Credential.Backend == credential.BackendKeyring {
		return fmt.Sprintf("keyring (%s/%s)", cfg.Credential.Namespace, cfg.Credential.Key)
	}
	return fmt.Sprintf("%s (%s)", cfg.Credential.Backend, cfg.Credential.Path)
}
