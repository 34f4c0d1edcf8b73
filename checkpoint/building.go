package checkpoint

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/umbracustody/checkpointqueue/sigset"
)

// BuildingCheckpoint is a mutating view over a checkpoint in the Building
// status: it accepts new deposit inputs and withdrawal outputs, and
// executes the Building→Signing transition.
type BuildingCheckpoint struct {
	cp  *Checkpoint
	cfg *Config
}

// Checkpoint returns the underlying checkpoint record.
func (b *BuildingCheckpoint) Checkpoint() *Checkpoint {
	return b.cp
}

// PushInput computes the scriptPubKey and redeem script for (set, dest),
// appends a fresh Input spending prevout, and initializes its
// threshold-signature collector against set.
//
// For a caller-driven deposit, set MUST be this checkpoint's own frozen
// sigset — passing any other is a caller programming error that this
// method does not itself validate, matching the source it is grounded
// on. The one legitimate exception is the scheduler's own reserve-chaining
// call in MaybeStep, which deliberately passes the *predecessor's* sigset:
// the chained input is only eligible to be signed by the signatory set
// that produced the reserve output it spends, even though it now lives in
// a checkpoint governed by a newer set.
func (b *BuildingCheckpoint) PushInput(prevout wire.OutPoint, set *sigset.SignatorySet,
	dest sigset.Address, amount uint64) error {

	scriptPubKey, err := set.OutputScript(dest)
	if err != nil {
		return fmt.Errorf("deriving output script: %w", err)
	}
	redeemScript, err := set.RedeemScript(dest)
	if err != nil {
		return fmt.Errorf("deriving redeem script: %w", err)
	}

	in := &Input{
		Prevout:      prevout,
		ScriptPubKey: scriptPubKey,
		RedeemScript: redeemScript,
		SigsetIndex:  set.Index,
		Dest:         dest,
		Amount:       amount,
	}
	if err := in.Sigs.FromSigset(set); err != nil {
		return err
	}

	b.cp.Inputs = append(b.cp.Inputs, in)
	return nil
}

// PushOutput appends a withdrawal output to the checkpoint.
func (b *BuildingCheckpoint) PushOutput(out *wire.TxOut) error {
	b.cp.Outputs = append(b.cp.Outputs, out)
	return nil
}

// Advance executes the Building→Signing transition: it inserts the
// reserve output at position 0, enforces the input/output caps, computes
// the fee from the estimated transaction size, writes the reserve value
// in place, and fixes every input's sighash. It consumes the
// BuildingCheckpoint — the returned SigningCheckpoint is the only valid
// handle to this checkpoint from here on.
func (b *BuildingCheckpoint) Advance() (*SigningCheckpoint, error) {
	cp := b.cp
	cp.Status = StatusSigning

	reserveScript, err := cp.Sigset.OutputScript(sigset.NullAddress)
	if err != nil {
		return nil, fmt.Errorf("deriving reserve output script: %w", err)
	}
	reserveOut := &wire.TxOut{
		Value:    0, // placeholder, fixed up below
		PkScript: reserveScript,
	}
	cp.Outputs = append([]*wire.TxOut{reserveOut}, cp.Outputs...)

	if len(cp.Inputs) > b.cfg.MaxInputs {
		return nil, ErrTooManyInputs
	}
	if len(cp.Outputs) > b.cfg.MaxOutputs {
		return nil, ErrTooManyOutputs
	}

	var inAmount uint64
	for _, in := range cp.Inputs {
		inAmount += in.Amount
	}
	var outAmount uint64
	for _, out := range cp.Outputs {
		outAmount += uint64(out.Value)
	}

	tx, estVSize, err := cp.Tx()
	if err != nil {
		return nil, fmt.Errorf("assembling transaction: %w", err)
	}

	fee := estVSize * b.cfg.FeeRate
	if inAmount < outAmount+fee {
		return nil, ErrInsufficientFee
	}
	reserveValue := inAmount - outAmount - fee

	cp.Outputs[0].Value = int64(reserveValue)
	tx.TxOut[0].Value = int64(reserveValue)

	if err := fixSighashes(cp, tx); err != nil {
		return nil, err
	}

	log.Infof("checkpoint %d advanced to signing: %d inputs, %d outputs, "+
		"reserve=%d, fee=%d", cp.Sigset.Index, len(cp.Inputs),
		len(cp.Outputs), reserveValue, fee)

	return &SigningCheckpoint{cp: cp, cfg: b.cfg}, nil
}

// fixSighashes computes the BIP-143 SegWit sighash of tx at every input
// index, under SIGHASH_ALL, and fixes it as that input's collector
// message.
func fixSighashes(cp *Checkpoint, tx *wire.MsgTx) error {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(cp.Inputs))
	for _, in := range cp.Inputs {
		prevOuts[in.Prevout] = &wire.TxOut{
			Value:    int64(in.Amount),
			PkScript: in.ScriptPubKey,
		}
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range cp.Inputs {
		sigHash, err := txscript.CalcWitnessSigHash(
			in.RedeemScript, sigHashes, txscript.SigHashAll, tx,
			i, int64(in.Amount),
		)
		if err != nil {
			return fmt.Errorf("computing sighash for input %d: %w", i, err)
		}

		var hash [32]byte
		copy(hash[:], sigHash)
		if err := in.Sigs.SetMessage(hash); err != nil {
			return fmt.Errorf("fixing message for input %d: %w", i, err)
		}
	}

	return nil
}
