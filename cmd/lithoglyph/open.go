package main

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/abi"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open (or initialize) a database and report its handle",
	Long: `open is a smoke test for db_open/db_close: it opens the
database at --db, prints the opaque handle it was assigned, then
closes it again.`,
	RunE: runOpen,
}

func init() {
	openCmd.Flags().String("db", "", "database directory (required)")
	openCmd.Flags().String("config", "", "optional YAML file of db_open options")
	_ = openCmd.MarkFlagRequired("db")
}

func runOpen(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	configPath, _ := cmd.Flags().GetString("config")

	optsBlob, err := loadDBOpenOptsBlob(configPath)
	if err != nil {
		return err
	}

	handle, err := abi.DBOpen(dbPath, optsBlob)
	if err != nil {
		return fmt.Errorf("db_open: %w", err)
	}
	defer abi.DBClose(handle)

	fmt.Printf("opened %s (handle %s)\n", dbPath, handle)
	return nil
}
