// Command libshare uploads, shares and downloads end-to-end encrypted files
// against a local ledger and content store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

func commands() []command {
	return []command{
		{"init", "Write a default configuration file", runInit},
		{"keygen", "Generate an identity key", runKeygen},
		{"whoami", "Print the identity and public key", runWhoami},
		{"register", "Publish the public key in the directory", runRegister},
		{"upload", "Encrypt and upload a file", runUpload},
		{"share", "Share a file with a registered identity", runShare},
		{"unshare", "Revoke a recipient's access to a file", runUnshare},
		{"download", "Fetch and decrypt a file", runDownload},
		{"archive", "Hide a file from the default listing", runArchive},
		{"restore", "Return an archived file to the listing", runRestore},
		{"ls", "List owned, shared and archived files", runList},
		{"recipients", "List the recipients of an owned file", runRecipients},
		{"prune", "Revoke key placements no longer backed by the ledger", runPrune},
		{"blobs", "List locators in the local blob store", runBlobs},
		{"serve", "Serve local blobs to other clients", runServe},
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return nil
	}
	for _, cmd := range commands() {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	printUsage()
	return fmt.Errorf("unknown subcommand: %q", args[0])
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: libshare <subcommand> [flags] [args]\n\nSubcommands:\n")
	for _, cmd := range commands() {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'libshare <subcommand> --help' for subcommand flags.\n")
}
