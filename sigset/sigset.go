// Package sigset defines the frozen signatory set bound to a checkpoint
// index: the roster of signers, their voting power, and the quorum
// threshold a threshold-signed input must clear.
//
// Construction of a SignatorySet from a live validator set is an external
// concern (normally driven by a consensus engine's validator power
// table); this package exposes only the Builder interface for it plus a
// minimal in-memory implementation good enough for tests and the
// cmd/checkpointctl tool.
package sigset

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// AddressSize is the length in bytes of an account address on the custody
// chain, as referenced by Input.Dest.
const AddressSize = 20

// Address is a 20-byte account address on the custody chain.
type Address [AddressSize]byte

// NullAddress is the placeholder destination used for the reserve output
// and for the chained input that spends it — neither belongs to any single
// depositor.
var NullAddress = Address{}

// Signatory is a single member of a signatory set: a compressed pubkey and
// the voting power backing it.
type Signatory struct {
	// PubKey is the signer's compressed secp256k1 public key.
	PubKey *btcec.PublicKey

	// VotingPower is this signatory's share of the set's total voting
	// power, in the same units as the consensus engine's validator power.
	VotingPower uint64
}

// SignatorySet is the frozen roster of signers eligible to sign every
// input of one particular checkpoint. It is created once, at the logical
// index it governs, and never mutated afterward.
type SignatorySet struct {
	// Index is the logical checkpoint index this set was built for.
	Index uint32

	// CreateTime is the wall-clock second at which this set (and
	// therefore its checkpoint) was created.
	CreateTime uint64

	// Signatories is sorted by public key in compressed-serialization
	// byte order — the same order multisig scripts place keys in, and
	// the order witness signatures must be emitted in.
	Signatories []Signatory
}

// totalVP returns the sum of every signatory's voting power, i.e. the
// "possible" voting power of the set.
func (s *SignatorySet) totalVP() uint64 {
	var total uint64
	for _, sig := range s.Signatories {
		total += sig.VotingPower
	}
	return total
}

// PossibleVP returns the total voting power represented by this set. A set
// with zero possible voting power is never viable (see HasQuorum).
func (s *SignatorySet) PossibleVP() uint64 {
	return s.totalVP()
}

// QuorumVP returns the voting power required for a threshold signature to
// be considered done: a supermajority (more than two-thirds) of the
// set's total voting power, matching Tendermint-style BFT quorums.
func (s *SignatorySet) QuorumVP() uint64 {
	total := s.totalVP()
	return total*2/3 + 1
}

// HasQuorum reports whether the set's own membership could ever reach
// quorum — i.e. whether its combined voting power meets QuorumVP. Since
// the set holds only its members, this is false only for a set with zero
// voting power; validators absent from the roster are not accounted for.
func (s *SignatorySet) HasQuorum() bool {
	return s.totalVP() >= s.QuorumVP()
}

// Len returns the number of signatories in the set.
func (s *SignatorySet) Len() int {
	return len(s.Signatories)
}

// indexOf returns the position of pubkey within Signatories, or -1.
func (s *SignatorySet) indexOf(pubKey *btcec.PublicKey) int {
	target := pubKey.SerializeCompressed()
	for i, sig := range s.Signatories {
		if bytes.Equal(sig.PubKey.SerializeCompressed(), target) {
			return i
		}
	}
	return -1
}

// Contains reports whether pubKey is a member of the set.
func (s *SignatorySet) Contains(pubKey *btcec.PublicKey) bool {
	return s.indexOf(pubKey) >= 0
}

// VotingPowerOf returns the voting power assigned to pubKey, or 0 if it is
// not a member.
func (s *SignatorySet) VotingPowerOf(pubKey *btcec.PublicKey) uint64 {
	idx := s.indexOf(pubKey)
	if idx < 0 {
		return 0
	}
	return s.Signatories[idx].VotingPower
}

// redeemScript builds the threshold-multisig witness script for dest: an
// OP_CHECKMULTISIG-style script that is satisfied once signatures
// representing quorum voting power are supplied, expressed as a plain
// N-of-M CHECKMULTISIG over the set's public keys (N = len(Signatories),
// "any M-of-N" voting-power-weighted thresholds are enforced by the
// checkpoint's collector, not by the script itself).
//
// dest is folded into the script via an OP_DROP'd push so that the
// resulting script, and therefore the P2WSH output address, is unique per
// destination even though every destination shares the same signer set.
func (s *SignatorySet) redeemScript(dest Address) ([]byte, error) {
	const maxSmallIntMultiSig = 16
	if len(s.Signatories) > maxSmallIntMultiSig {
		return nil, fmt.Errorf("signatory set too large for "+
			"CHECKMULTISIG: %d signatories", len(s.Signatories))
	}

	builder := txscript.NewScriptBuilder()

	builder.AddData(dest[:])
	builder.AddOp(txscript.OP_DROP)

	builder.AddOp(opForN(len(s.Signatories)))
	for _, sig := range s.Signatories {
		builder.AddData(sig.PubKey.SerializeCompressed())
	}
	builder.AddOp(opForN(len(s.Signatories)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	return builder.Script()
}

// opForN returns the script opcode that pushes the small integer n, used
// for both the multisig M and N parameters.
func opForN(n int) byte {
	if n == 0 {
		return txscript.OP_0
	}
	return txscript.OP_1 + byte(n-1)
}

// RedeemScript returns the P2WSH redeem script binding this signatory set
// to dest.
func (s *SignatorySet) RedeemScript(dest Address) ([]byte, error) {
	return s.redeemScript(dest)
}

// OutputScript returns the P2WSH scriptPubKey paying to this signatory
// set's redeem script for dest.
func (s *SignatorySet) OutputScript(dest Address) ([]byte, error) {
	redeem, err := s.redeemScript(dest)
	if err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	hash := sha256.Sum256(redeem)
	builder.AddData(hash[:])
	return builder.Script()
}

// sortSignatories normalizes a signatory list to compressed-pubkey byte
// order, matching BIP-67 style lexicographic multisig key ordering.
func sortSignatories(sigs []Signatory) {
	sort.Slice(sigs, func(i, j int) bool {
		return bytes.Compare(
			sigs[i].PubKey.SerializeCompressed(),
			sigs[j].PubKey.SerializeCompressed(),
		) < 0
	})
}

// New builds a SignatorySet for logical checkpoint index, at createTime,
// from an unordered slice of signatories. The signatories are copied and
// sorted into canonical order.
func New(index uint32, createTime uint64, signatories []Signatory) *SignatorySet {
	sorted := make([]Signatory, len(signatories))
	copy(sorted, signatories)
	sortSignatories(sorted)

	return &SignatorySet{
		Index:       index,
		CreateTime:  createTime,
		Signatories: sorted,
	}
}

// Builder constructs a frozen SignatorySet for a given logical checkpoint
// index from whatever live validator/key-delegation state the surrounding
// system maintains. This is the external "signatory-set construction from
// a validator set" collaborator referenced by spec.md — the checkpoint
// queue only ever consumes the SignatorySet it returns.
type Builder interface {
	// BuildSignatorySet returns the signatory set that should govern the
	// checkpoint at logical index, as of createTime.
	BuildSignatorySet(index uint32, createTime uint64) (*SignatorySet, error)
}
