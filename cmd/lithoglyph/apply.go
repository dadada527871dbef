package main

import (
	"fmt"
	"os"

	"github.com/hyperpolymath/lithoglyph/pkg/abi"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// opFile is the YAML shape apply's --file argument decodes into. It
// covers a subset of pkg/abi's internal opEnvelope so a CLI user can
// hand-write a YAML operation for `apply` instead of constructing a
// CBOR blob by hand: body is a string sent as bytes, actor and
// rationale become the envelope's provenance, and there are no edge or
// rewrite_rules fields, so edge_insert and migration rewrite rules
// cannot be expressed here.
type opFile struct {
	Op                  string `yaml:"op"`
	Collection          string `yaml:"collection,omitempty"`
	Kind                string `yaml:"kind,omitempty"`
	BlockID             uint64 `yaml:"block_id,omitempty"`
	Body                string `yaml:"body,omitempty"`
	TargetSchemaBlockID uint64 `yaml:"target_schema_block_id,omitempty"`
	Actor               string `yaml:"actor"`
	Rationale           string `yaml:"rationale"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply one operation from a YAML file within a new transaction",
	Long: `Apply reads a single operation description from -f, opens a
read_write transaction, runs the operation through apply(txn, op_blob),
commits, and prints the CBOR-decoded result.

Example YAML:
  op: doc_insert
  collection: widgets
  body: '{"title":"hello"}'
  actor: cli
  rationale: manual smoke test`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().String("db", "", "database directory (required)")
	applyCmd.Flags().StringP("file", "f", "", "YAML operation file (required)")
	_ = applyCmd.MarkFlagRequired("db")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var of opFile
	if err := yaml.Unmarshal(data, &of); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	if of.Op == "" {
		return fmt.Errorf("operation file is missing required field 'op'")
	}

	opBlob, err := codec.Encode(map[string]interface{}{
		"op":                     of.Op,
		"collection":             of.Collection,
		"kind":                   of.Kind,
		"block_id":               of.BlockID,
		"body":                   []byte(of.Body),
		"target_schema_block_id": of.TargetSchemaBlockID,
		"provenance": codec.Provenance{
			Actor:     of.Actor,
			Rationale: of.Rationale,
		},
	})
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}

	dbHandle, err := abi.DBOpen(dbPath, nil)
	if err != nil {
		return fmt.Errorf("db_open: %w", err)
	}
	defer abi.DBClose(dbHandle)

	txnHandle, err := abi.TxnBegin(dbHandle, "read_write")
	if err != nil {
		return fmt.Errorf("txn_begin: %w", err)
	}

	resultBlob, _, err := abi.Apply(dbHandle, txnHandle, opBlob)
	if err != nil {
		abi.TxnAbort(dbHandle, txnHandle)
		return fmt.Errorf("apply: %w", err)
	}

	if err := abi.TxnCommit(dbHandle, txnHandle); err != nil {
		return fmt.Errorf("txn_commit: %w", err)
	}

	var result map[string]interface{}
	if err := codec.Decode(resultBlob, &result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Printf("ok: %+v\n", result)
	return nil
}
