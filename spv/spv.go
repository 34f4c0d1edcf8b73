// Package spv defines the external chain-observation collaborator this
// module depends on but does not implement: proof that a deposit's
// outpoint actually exists, pays the expected script and amount, and has
// reached the confirmation depth the caller requires before it is safe to
// call checkpoint.BuildingCheckpoint.PushInput for it.
//
// The interface is grounded on chainntfs.ChainNotifier's "trusted source of
// chain events, implementation left open" shape, but narrowed to the one
// fact the checkpoint queue actually needs verified — it has no use for
// reorg or block-epoch notifications, since MaybeStep is driven entirely
// by wall-clock time and externally supplied amounts, never by chain tip.
package spv

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

// ErrNotConfirmed is returned by OutpointVerifier implementations when the
// outpoint exists but has not yet reached the required confirmation depth.
var ErrNotConfirmed = errors.New("spv: outpoint has not reached required confirmations")

// ErrOutpointNotFound is returned when the outpoint does not appear on the
// chain the verifier is watching at all.
var ErrOutpointNotFound = errors.New("spv: outpoint not found")

// ErrScriptMismatch is returned when the outpoint is found but its actual
// scriptPubKey or value does not match what the caller expected to see —
// the proof a depositor is trying to present does not describe the output
// that was actually mined.
var ErrScriptMismatch = errors.New("spv: outpoint does not match expected script or amount")

// OutpointVerifier proves that an outpoint exists on-chain, pays a
// specific scriptPubKey and amount, and has reached minConfs
// confirmations. Concrete implementations might wrap a full node's RPC, a
// light (SPV) client validating Merkle proofs against known headers, or a
// block explorer API; this module is agnostic to which.
type OutpointVerifier interface {
	// VerifyOutpoint checks outpoint against the chain this verifier
	// watches. A nil error means the outpoint exists, matches
	// scriptPubKey and amount exactly, and has reached minConfs
	// confirmations — the caller may safely treat it as a confirmed
	// deposit and call PushInput.
	VerifyOutpoint(ctx context.Context, outpoint wire.OutPoint,
		scriptPubKey []byte, amount uint64, minConfs uint32) error
}

// HeaderSource is the minimal view of chain-tip height this package's
// callers need in order to decide whether a deposit proof is stale enough
// to re-check before trusting it, grounded on the BlockEpochEvent half of
// chainntfs.ChainNotifier.
type HeaderSource interface {
	// TipHeight returns the height of the best chain tip currently
	// known to the verifier's backing node or client.
	TipHeight(ctx context.Context) (int32, error)
}
