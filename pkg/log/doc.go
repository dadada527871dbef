/*
Package log provides structured logging for Lithoglyph using zerolog.

A single root logger is configured once via Init; every subsystem
(block store, journal, model layer, transaction manager, bridge)
derives a component-tagged child from it at construction time and
attaches operation identifiers (block_id, sequence, txn_id,
reason_code) as inline fields at each call site.

# Usage

	log.Init(log.Config{Level: "debug", JSONOutput: true})

	logger := log.WithComponent("journal")
	logger.Warn().Uint64("sequence", seq).Msg("entry marked uncompleted")

# Audit events

The truth core's two recurring log shapes get dedicated helpers so
their field sets stay uniform across subsystems: Mutation records a
successfully journaled operation at debug level (op, sequence,
block_id), and Rejection records a recoverable refusal at warn level
with the same machine-readable reason code the caller receives in the
error blob.
*/
package log
