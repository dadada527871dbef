package main

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/abi"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/spf13/cobra"
)

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Print the schema or constraint catalog of a database",
	Long: `introspect is a smoke test for introspect_schema /
introspect_constraints: it prints every registered
collection's schema, or every registered constraint, depending on
--what.`,
	RunE: runIntrospect,
}

func init() {
	introspectCmd.Flags().String("db", "", "database directory (required)")
	introspectCmd.Flags().String("what", "schema", "what to introspect: schema or constraints")
	_ = introspectCmd.MarkFlagRequired("db")
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	what, _ := cmd.Flags().GetString("what")

	handle, err := abi.DBOpen(dbPath, nil)
	if err != nil {
		return fmt.Errorf("db_open: %w", err)
	}
	defer abi.DBClose(handle)

	var blob []byte
	switch what {
	case "schema":
		blob, err = abi.IntrospectSchema(handle)
	case "constraints":
		blob, err = abi.IntrospectConstraints(handle)
	default:
		return fmt.Errorf("unknown --what %q, want schema or constraints", what)
	}
	if err != nil {
		return fmt.Errorf("introspect: %w", err)
	}

	var out interface{}
	if err := codec.Decode(blob, &out); err != nil {
		return fmt.Errorf("decode introspection result: %w", err)
	}
	fmt.Printf("%+v\n", out)
	return nil
}
