package checkpoint

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/umbracustody/checkpointqueue/sigset"
	"github.com/umbracustody/checkpointqueue/thresholdsig"
)

// sequenceFinal is the nSequence value used on every checkpoint input,
// disabling relative timelocks and opting the transaction into BIP-125
// non-replaceability.
const sequenceFinal = 0xFFFFFFFF

// Input is a single input to a checkpoint's transaction: a deposit (or,
// for every non-genesis checkpoint's first input, the chained spend of
// the predecessor's reserve output), together with the threshold-signature
// collector accumulating signatures for it.
type Input struct {
	// Prevout is the Bitcoin outpoint this input spends.
	Prevout wire.OutPoint

	// ScriptPubKey is the scriptPubKey of the output being spent —
	// the P2WSH script derived from (Sigset, Dest).
	ScriptPubKey []byte

	// RedeemScript is the witness script backing ScriptPubKey — the
	// signatory set's threshold-multisig script, bound to Dest.
	RedeemScript []byte

	// SigsetIndex is the logical checkpoint index of the signatory set
	// eligible to sign this input. It is normally equal to the owning
	// checkpoint's own index, except for a checkpoint's chained reserve
	// input, which belongs to the predecessor's (older) signatory set and
	// keeps that index for the checkpoint's whole lifetime.
	SigsetIndex uint32

	// Dest is the 20-byte account address on the custody chain that
	// this deposit credits. It is the null address for the reserve
	// chaining input, which credits no single depositor.
	Dest sigset.Address

	// Amount is the value in satoshis being spent by this input.
	Amount uint64

	// Sigs is the threshold-signature collector for this input.
	Sigs thresholdsig.Collector
}

// ToTxIn builds the wire.TxIn for this input: an empty scriptSig (this is
// a pure SegWit spend), final sequence, and the collector's witness with
// the redeem script appended once the collector reports Done.
func (in *Input) ToTxIn() (*wire.TxIn, error) {
	witness, err := in.Sigs.ToWitness()
	if err != nil {
		return nil, err
	}
	if in.Sigs.Done() {
		witness = append(witness, in.RedeemScript)
	}

	return &wire.TxIn{
		PreviousOutPoint: in.Prevout,
		SignatureScript:  nil,
		Witness:          witness,
		Sequence:         sequenceFinal,
	}, nil
}
