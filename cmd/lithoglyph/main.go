package main

import (
	"fmt"
	"os"

	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
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
	Use:   "lithoglyph",
	Short: "Lithoglyph - audit-grade database core smoke-test CLI",
	Long: `lithoglyph is a thin command-line wrapper over the bridge/ABI
(pkg/abi): every subcommand opens a database, performs exactly one
operation through the same narrow boundary any higher-level runtime
would use, and closes it again. It is a convenience and smoke-test
tool, not a required part of the core.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lithoglyph version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(renderBlockCmd)
	rootCmd.AddCommand(renderJournalCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(proofVerifyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      logLevel,
		JSONOutput: logJSON,
	})
}
