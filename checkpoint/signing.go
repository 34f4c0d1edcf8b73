package checkpoint

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// SigHashWithIndex pairs the sighash a signer must sign with the sigset
// index to derive their per-input key from.
type SigHashWithIndex struct {
	Hash        [32]byte
	SigsetIndex uint32
}

// SigningCheckpoint is a read/mutate view over a checkpoint in the
// Signing status: it derives per-signer sighashes, accepts a signer's
// batched signatures, and advances to Complete once every input is
// quorum-signed.
type SigningCheckpoint struct {
	cp  *Checkpoint
	cfg *Config
}

// Checkpoint returns the underlying checkpoint record.
func (s *SigningCheckpoint) Checkpoint() *Checkpoint {
	return s.cp
}

// derivePubKey derives the child public key xpub is expected to sign
// with for a given sigset index, via the input's own sigset_index (not
// necessarily the checkpoint's own sigset index — see the chained input
// discussion in BuildingCheckpoint.PushInput).
func derivePubKey(xpub *hdkeychain.ExtendedKey, sigsetIndex uint32) (*btcec.PublicKey, error) {
	child, err := xpub.Child(sigsetIndex)
	if err != nil {
		return nil, fmt.Errorf("deriving child xpub: %w", err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("extracting child pubkey: %w", err)
	}
	return pubKey, nil
}

// ToSign returns, for each input whose derived child public key is a
// member of that input's collector and has not yet signed, the sighash
// the signer must produce paired with the sigset index to derive their
// key from. The list is in input order.
func (s *SigningCheckpoint) ToSign(xpub *hdkeychain.ExtendedKey) ([]SigHashWithIndex, error) {
	var out []SigHashWithIndex

	for _, in := range s.cp.Inputs {
		pubKey, err := derivePubKey(xpub, in.SigsetIndex)
		if err != nil {
			return nil, err
		}
		if in.Sigs.NeedsSig(pubKey) {
			out = append(out, SigHashWithIndex{
				Hash:        in.Sigs.Message(),
				SigsetIndex: in.SigsetIndex,
			})
		}
	}

	return out, nil
}

// signStep is one input this signer batch will actually sign, found while
// walking the input list in Sign.
type signStep struct {
	input  *Input
	pubKey *btcec.PublicKey
	sig    []byte
}

// Sign applies sigs, supplied in the same input-order ToSign would
// produce for this same xpub but conceptually enumerated over all inputs
// whose collector contains this signer's derived key (including already
// done ones, which still consume a slot). The call is all-or-nothing: any
// invalid signature, or a sigs slice that is too short or too long, fails
// the whole call without mutating any collector.
func (s *SigningCheckpoint) Sign(xpub *hdkeychain.ExtendedKey, sigs [][]byte) error {
	var steps []signStep

	j := 0
	for _, in := range s.cp.Inputs {
		pubKey, err := derivePubKey(xpub, in.SigsetIndex)
		if err != nil {
			return err
		}
		if !in.Sigs.ContainsKey(pubKey) {
			continue
		}

		if j >= len(sigs) {
			return ErrNotEnoughSignatures
		}

		if in.Sigs.Done() {
			// Consumes a slot for a signer whose signature is no
			// longer needed, but still counted in the batch.
			j++
			continue
		}

		steps = append(steps, signStep{input: in, pubKey: pubKey, sig: sigs[j]})
		j++
	}

	if j != len(sigs) {
		return ErrExcessSignatures
	}

	// Validate every signature before mutating any collector, so a
	// single bad signature never leaves the checkpoint partially
	// signed.
	for _, st := range steps {
		if err := st.input.Sigs.ValidateOnly(st.pubKey, st.sig); err != nil {
			return err
		}
	}

	for _, st := range steps {
		if err := st.input.Sigs.Sign(st.pubKey, st.sig); err != nil {
			return err
		}
		if st.input.Sigs.Done() {
			s.cp.SignedInputs++
		}
	}

	return nil
}

// Done reports whether every input on this checkpoint has reached
// quorum.
func (s *SigningCheckpoint) Done() bool {
	return int(s.cp.SignedInputs) == len(s.cp.Inputs)
}

// Advance transitions the checkpoint to Complete. Its transaction and
// signatures are now frozen forever.
func (s *SigningCheckpoint) Advance() error {
	s.cp.Status = StatusComplete
	log.Infof("checkpoint %d complete", s.cp.Sigset.Index)
	return nil
}
