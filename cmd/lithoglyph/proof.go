package main

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/abi"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/spf13/cobra"
)

var proofVerifyCmd = &cobra.Command{
	Use:   "proof-verify",
	Short: "Register built-in proof verifiers and verify a proof reference",
	Long: `proof-verify is a smoke test for proof_init_builtins /
proof_verify: it registers the built-in verifiers in
this process, builds a ProofRef from --proof-type and --ref, and
prints the verdict. The registry is process-wide, not tied to any
open database.`,
	RunE: runProofVerify,
}

func init() {
	proofVerifyCmd.Flags().Uint64("proof-type", 0, "proof_type_id to dispatch to (required)")
	proofVerifyCmd.Flags().String("ref", "", "opaque proof payload, interpreted by the bound verifier")
	_ = proofVerifyCmd.MarkFlagRequired("proof-type")
}

func runProofVerify(cmd *cobra.Command, args []string) error {
	proofType, _ := cmd.Flags().GetUint64("proof-type")
	ref, _ := cmd.Flags().GetString("ref")

	if err := abi.ProofInitBuiltins(); err != nil {
		return fmt.Errorf("proof_init_builtins: %w", err)
	}

	blob, err := codec.Encode(codec.ProofRef{ProofType: proofType, Ref: ref})
	if err != nil {
		return fmt.Errorf("encode proof ref: %w", err)
	}

	verdictBlob, err := abi.ProofVerify(blob)
	if err != nil {
		return fmt.Errorf("proof_verify: %w", err)
	}

	var verdict map[string]interface{}
	if err := codec.Decode(verdictBlob, &verdict); err != nil {
		return fmt.Errorf("decode verdict: %w", err)
	}
	fmt.Printf("%+v\n", verdict)
	return nil
}
