// Package thresholdsig implements the pure, offline threshold-signature
// collector consumed by a checkpoint Input (spec §4.1). It knows nothing
// about checkpoints, transactions, or the queue — only a fixed sigset, a
// fixed message, and the signatures collected against it so far.
//
// The shape follows lnd's lnwallet.WitnessGenerator/WitnessType pair: a
// small, self-contained unit that turns recorded signing material into a
// witness stack on demand, grounded on lnwallet/witnessgen.go and the
// multisig witness layout built by lnwallet/script_utils.go.
package thresholdsig

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/umbracustody/checkpointqueue/sigset"
)

var (
	// ErrAlreadySigned is returned by Sign when the given pubkey has
	// already supplied a valid signature.
	ErrAlreadySigned = errors.New("thresholdsig: pubkey already signed")

	// ErrNotSignatory is returned by Sign when pubkey is not a member
	// of the collector's sigset.
	ErrNotSignatory = errors.New("thresholdsig: pubkey is not a member of the signatory set")

	// ErrInvalidSignature is returned by Sign when sig does not
	// validate against the fixed message under pubkey.
	ErrInvalidSignature = errors.New("thresholdsig: signature does not validate")

	// ErrMessageAlreadySet is returned by SetMessage if called more
	// than once on the same collector.
	ErrMessageAlreadySet = errors.New("thresholdsig: message already set")

	// ErrNoSigset is returned by operations that require FromSigset to
	// have been called first.
	ErrNoSigset = errors.New("thresholdsig: collector has no sigset")
)

// maxDERSigLen is the worst-case length in bytes of a DER-encoded ECDSA
// signature plus its trailing sighash-type byte, as used throughout lnd's
// fee/weight estimation (lnwallet/size.go's P2WKHWitnessSize and friends
// budget 73 bytes per signature for the same reason).
const maxDERSigLen = 73

// Collector accumulates threshold signatures for a single input's sighash
// against a fixed signatory set.
type Collector struct {
	sigset *sigset.SignatorySet

	message    [32]byte
	messageSet bool

	// sigs is parallel to sigset.Signatories: sigs[i] is the signature
	// supplied by Signatories[i], or nil if that signer hasn't signed
	// yet.
	sigs [][]byte
}

// FromSigset initializes the collector to await signatures from set. It
// must be called exactly once, before any other method, normally right
// after a fresh Input is appended to a Building checkpoint.
func (c *Collector) FromSigset(set *sigset.SignatorySet) error {
	c.sigset = set
	c.sigs = make([][]byte, set.Len())
	return nil
}

// requireSigset returns ErrNoSigset if FromSigset hasn't run yet.
func (c *Collector) requireSigset() error {
	if c.sigset == nil {
		return ErrNoSigset
	}
	return nil
}

// SetMessage fixes the 32-byte sighash this collector's signatures must
// validate against. Called exactly once, at Building→Signing.
func (c *Collector) SetMessage(hash [32]byte) error {
	if err := c.requireSigset(); err != nil {
		return err
	}
	if c.messageSet {
		return ErrMessageAlreadySet
	}
	c.message = hash
	c.messageSet = true
	return nil
}

// Message returns the fixed sighash, once set.
func (c *Collector) Message() [32]byte {
	return c.message
}

// ContainsKey reports whether pubkey is a member of the sigset.
func (c *Collector) ContainsKey(pubkey *btcec.PublicKey) bool {
	if c.sigset == nil {
		return false
	}
	return c.sigset.Contains(pubkey)
}

// NeedsSig reports whether pubkey is a sigset member that has not yet
// supplied a signature.
func (c *Collector) NeedsSig(pubkey *btcec.PublicKey) bool {
	idx := c.indexOf(pubkey)
	if idx < 0 {
		return false
	}
	return c.sigs[idx] == nil
}

// indexOf returns pubkey's position within the sigset's signatory list,
// or -1 if it is not a member.
func (c *Collector) indexOf(pubkey *btcec.PublicKey) int {
	if c.sigset == nil {
		return -1
	}
	target := pubkey.SerializeCompressed()
	for i, sig := range c.sigset.Signatories {
		if string(sig.PubKey.SerializeCompressed()) == string(target) {
			return i
		}
	}
	return -1
}

// Sign records sig from pubkey. It fails if pubkey is not a sigset member,
// if pubkey already signed, or if sig does not validate under the fixed
// message and pubkey. sig is a raw DER-encoded ECDSA signature with no
// trailing sighash-type byte; the byte is appended when building the
// witness.
func (c *Collector) Sign(pubkey *btcec.PublicKey, sig []byte) error {
	if err := c.requireSigset(); err != nil {
		return err
	}
	if !c.messageSet {
		return fmt.Errorf("thresholdsig: no message set to sign")
	}

	idx := c.indexOf(pubkey)
	if idx < 0 {
		return ErrNotSignatory
	}
	if c.sigs[idx] != nil {
		return ErrAlreadySigned
	}

	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Verify(c.message[:], pubkey) {
		return ErrInvalidSignature
	}

	c.sigs[idx] = sig
	return nil
}

// ValidateOnly checks that sig would be accepted from pubkey by Sign,
// without recording it. It is used to validate an entire signature batch
// before applying any of it, so a batch with one bad signature never
// partially mutates a checkpoint's collectors.
func (c *Collector) ValidateOnly(pubkey *btcec.PublicKey, sig []byte) error {
	if err := c.requireSigset(); err != nil {
		return err
	}
	if !c.messageSet {
		return fmt.Errorf("thresholdsig: no message set to sign")
	}

	idx := c.indexOf(pubkey)
	if idx < 0 {
		return ErrNotSignatory
	}
	if c.sigs[idx] != nil {
		return ErrAlreadySigned
	}

	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Verify(c.message[:], pubkey) {
		return ErrInvalidSignature
	}

	return nil
}

// Done reports whether the accumulated voting power of signers-so-far
// meets the sigset's quorum threshold.
func (c *Collector) Done() bool {
	if c.sigset == nil {
		return false
	}

	var signedVP uint64
	for i, sig := range c.sigs {
		if sig != nil {
			signedVP += c.sigset.Signatories[i].VotingPower
		}
	}
	return signedVP >= c.sigset.QuorumVP()
}

// ToWitness produces the witness stack for a standard P2WSH
// CHECKMULTISIG spend: an empty element for the null-dummy OP_0 bug
// workaround, followed by the recorded signatures (each with a trailing
// SIGHASH_ALL byte) in sigset key order, for signers that have signed so
// far.
func (c *Collector) ToWitness() ([][]byte, error) {
	if err := c.requireSigset(); err != nil {
		return nil, err
	}

	witness := make([][]byte, 0, len(c.sigs)+1)
	witness = append(witness, nil) // CHECKMULTISIG null-dummy

	const sighashAll = 0x01
	for _, sig := range c.sigs {
		if sig == nil {
			continue
		}
		withType := make([]byte, len(sig)+1)
		copy(withType, sig)
		withType[len(sig)] = sighashAll
		witness = append(witness, withType)
	}

	return witness, nil
}

// Export returns the collector's internal state for persistence: the
// sigset it was initialized against, the fixed message and whether it has
// been set, and a defensive copy of the recorded signatures slice.
func (c *Collector) Export() (set *sigset.SignatorySet, message [32]byte, messageSet bool, sigs [][]byte) {
	sigsCopy := make([][]byte, len(c.sigs))
	copy(sigsCopy, c.sigs)
	return c.sigset, c.message, c.messageSet, sigsCopy
}

// Restore reconstructs a collector from previously Exported state. It is
// the store package's counterpart to FromSigset for loading a persisted
// checkpoint back into memory.
func (c *Collector) Restore(set *sigset.SignatorySet, message [32]byte, messageSet bool, sigs [][]byte) {
	c.sigset = set
	c.message = message
	c.messageSet = messageSet
	c.sigs = make([][]byte, len(sigs))
	copy(c.sigs, sigs)
}

// EstVSize returns a deterministic, worst-case estimate of this input's
// witness+scriptSig virtual-size contribution, used for fee calculation
// at Building→Signing. The worst case assumes every signatory ends up
// signing (the collector cannot know in advance how many signers quorum
// will actually require), matching the conservative per-input budgeting
// lnd's lnwallet/size.go constants apply to fixed 2-of-2 multisig inputs,
// generalized here to an N-of-N witness stack.
func (c *Collector) EstVSize() uint64 {
	if c.sigset == nil {
		return 0
	}

	n := c.sigset.Len()

	// scriptSig is empty for a SegWit spend; only its 1-byte length
	// prefix counts toward base size.
	const emptyScriptSigSize = 1

	// Witness: element-count varint + null-dummy element (1-byte
	// length prefix, 0 bytes of data) + n signature elements (1-byte
	// length prefix + up to maxDERSigLen bytes each) + redeem script
	// element (1-byte length varint, assume <253 bytes, + script
	// bytes).
	redeemLen := 0
	if c.sigset != nil {
		if redeem, err := c.sigset.RedeemScript(sigset.NullAddress); err == nil {
			redeemLen = len(redeem)
		}
	}

	witnessBytes := 1 + // element count
		1 + // null-dummy length prefix
		n*(1+maxDERSigLen) +
		1 + redeemLen // redeem script length prefix + bytes

	// BIP-141 virtual size discounts witness data to 1/4 weight;
	// integer division rounds down, matching the conservative
	// (slightly low) worst-case budget this collector is willing to
	// accept, consistent with the rest of the system rounding fees
	// down rather than up.
	const witnessScaleFactor = 4
	return uint64(emptyScriptSigSize) + uint64(witnessBytes)/witnessScaleFactor
}
