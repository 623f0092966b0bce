// Command qshield-actor runs the JSONL conformance actor: it reads
// {id, op, params} requests from stdin and writes {id, ok, result|error}
// responses to stdout, one line each, until stdin closes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantumshieldlabs/qsp-core/actor"
	"github.com/quantumshieldlabs/qsp-core/durability"
)

func main() {
	var name string
	var journalPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "qshield-actor",
		Short: "Run the QSP conformance actor over stdin/stdout JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			var logger *zap.Logger
			var err error
			if verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger = zap.NewNop()
			}
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			var journal *durability.Journal
			if journalPath != "" {
				journal, err = durability.Open(journalPath)
				if err != nil {
					return fmt.Errorf("open durability journal: %w", err)
				}
				defer journal.Close()
			}

			a := actor.New(name, journal, logger)
			return a.Run(os.Stdin, os.Stdout)
		},
	}

	root.Flags().StringVar(&name, "name", "actor", "actor identity, used in logs")
	root.Flags().StringVar(&journalPath, "journal", "", "path to a bbolt durability journal (empty disables durability)")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable development-mode structured logging to stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
