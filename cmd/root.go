package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"redactor/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "redactor",
	Short: "Redactor - detect and mask personal data in document images",
	Long: `Redactor extracts text from scanned ID and financial documents with one or
more OCR engines, classifies the personal data it finds (names, ID numbers,
phone numbers, emails, dates, addresses) and writes a copy of the image with
every detected region blacked out.

It runs as a one-shot CLI, a batch processor, an HTTP service or a queue worker.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("redactor executed without subcommand")

		fmt.Println("Redactor - personal data redaction for document images")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
