// Command genemarket provides CLI tools for operating a deployed GeneMarket
// ledger.
//
// # Commands
//
// status: Display ledger state.
//
//	genemarket status --ledger=http://localhost:8080
//
// events: Print the retained event log, optionally following new events.
//
//	genemarket events --ledger=http://localhost:8080 --follow
//
// Administrative commands (pause, unpause, cooldown, provider-add,
// provider-remove, transfer-admin, open-batch, close-batch) sign their
// requests with the key given via --key and require it to be the current
// administrator.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cipherstack/genemarket/cmd/common"
	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = runStatus(args)
	case "events":
		err = runEvents(args)
	case "pause":
		err = runAdmin(args, func(c *services.Client, _ []string) error { return c.Pause() })
	case "unpause":
		err = runAdmin(args, func(c *services.Client, _ []string) error { return c.Unpause() })
	case "cooldown":
		err = runCooldown(args)
	case "provider-add":
		err = runProviderUpdate(args, true)
	case "provider-remove":
		err = runProviderUpdate(args, false)
	case "transfer-admin":
		err = runTransferAdmin(args)
	case "open-batch":
		err = runOpenBatch(args)
	case "close-batch":
		err = runCloseBatch(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`genemarket - CLI tools for the GeneMarket ledger

Usage:
  genemarket <command> [options]

Commands:
  status           Display ledger state
  events           Print the event log
  pause            Pause all provider and batch operations
  unpause          Resume operations
  cooldown         Update the global cooldown
  provider-add     Authorize a provider identity
  provider-remove  Revoke a provider identity
  transfer-admin   Reassign the administrator identity
  open-batch       Open the next submission batch
  close-batch      Close an open batch

Run 'genemarket <command> --help' for command-specific options.`)
}

func newClientFlags(fs *flag.FlagSet) (ledgerURL *string, keyHex *string) {
	ledgerURL = fs.String("ledger", "http://localhost:8080", "Ledger service URL")
	keyHex = fs.String("key", "", "Ed25519 signing key (hex)")
	return
}

func buildClient(ledgerURL, keyHex string) (*services.Client, error) {
	key, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return services.NewClient(ledgerURL, key), nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}

	state, err := client.GetState()
	if err != nil {
		return err
	}

	fmt.Printf("Admin:            %s\n", state.Admin)
	fmt.Printf("Paused:           %v\n", state.Paused)
	fmt.Printf("Cooldown seconds: %d\n", state.CooldownSeconds)
	fmt.Printf("Current batch:    %d\n", state.CurrentBatchID)
	fmt.Printf("Oracle pinned:    %v\n", state.OraclePinned)
	return nil
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	after := fs.Uint64("after", 0, "Only events with a greater sequence number")
	follow := fs.Bool("follow", false, "Poll for new events until interrupted")
	interval := fs.Duration("interval", 2*time.Second, "Poll interval with --follow")
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}

	cursor := *after
	for {
		events, err := client.GetEventsAfter(cursor)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("%6d  %-22s batch=%d request=%d identity=%s\n",
				ev.Seq, ev.Type, ev.BatchID, ev.RequestID, ev.Identity)
			cursor = ev.Seq
		}
		if !*follow {
			return nil
		}
		time.Sleep(*interval)
	}
}

func runAdmin(args []string, op func(*services.Client, []string) error) error {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}
	if err := op(client, fs.Args()); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func runCooldown(args []string) error {
	fs := flag.NewFlagSet("cooldown", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	seconds := fs.Uint64("seconds", 0, "New cooldown in seconds (non-zero)")
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}
	if err := client.SetCooldownSeconds(*seconds); err != nil {
		return err
	}
	fmt.Printf("Cooldown set to %d seconds\n", *seconds)
	return nil
}

func runProviderUpdate(args []string, add bool) error {
	fs := flag.NewFlagSet("provider", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	providerHex := fs.String("provider", "", "Provider public key (hex)")
	fs.Parse(args)

	provider, err := crypto.NewPublicKeyFromString(*providerHex)
	if err != nil {
		return fmt.Errorf("provider key: %w", err)
	}

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}

	if add {
		err = client.AddProvider(provider)
	} else {
		err = client.RemoveProvider(provider)
	}
	if err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func runTransferAdmin(args []string) error {
	fs := flag.NewFlagSet("transfer-admin", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	newAdminHex := fs.String("new-admin", "", "New administrator public key (hex)")
	fs.Parse(args)

	newAdmin, err := crypto.NewPublicKeyFromString(*newAdminHex)
	if err != nil {
		return fmt.Errorf("new admin key: %w", err)
	}

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}
	if err := client.TransferAdmin(newAdmin); err != nil {
		return err
	}
	fmt.Printf("Administrator transferred to %s\n", newAdmin.String())
	return nil
}

func runOpenBatch(args []string) error {
	fs := flag.NewFlagSet("open-batch", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}
	batchID, err := client.OpenBatch()
	if err != nil {
		return err
	}
	fmt.Printf("Opened batch %d\n", batchID)
	return nil
}

func runCloseBatch(args []string) error {
	fs := flag.NewFlagSet("close-batch", flag.ExitOnError)
	ledgerURL, keyHex := newClientFlags(fs)
	batchID := fs.Uint64("batch", 0, "Batch id to close")
	fs.Parse(args)

	client, err := buildClient(*ledgerURL, *keyHex)
	if err != nil {
		return err
	}
	if err := client.CloseBatch(*batchID); err != nil {
		return err
	}
	fmt.Printf("Closed batch %d\n", *batchID)
	return nil
}
