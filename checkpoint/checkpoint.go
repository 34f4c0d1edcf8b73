package checkpoint

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/umbracustody/checkpointqueue/sigset"
)

// Output is a single output of a checkpoint's transaction. The first
// output of every checkpoint is the reserve output, carrying the custody
// system's entire balance forward to the next checkpoint.
type Output = wire.TxOut

// txVersion is the Bitcoin transaction version used for every checkpoint
// transaction.
const txVersion = 1

// Checkpoint is one batch: a status, its ordered inputs and outputs, a
// count of fully-signed inputs, and the signatory set frozen at its
// creation.
type Checkpoint struct {
	Status Status

	Inputs []*Input

	// SignedInputs counts how many Inputs currently report Sigs.Done().
	// It is maintained incrementally by SigningCheckpoint.Sign rather
	// than recomputed, matching the source's signed_inputs counter.
	SignedInputs uint16

	Outputs []*Output

	// Sigset is the signatory set frozen for this checkpoint at
	// creation. It never changes afterward.
	Sigset *sigset.SignatorySet
}

// CreateTime returns the wall-clock second this checkpoint was created,
// which is defined by its sigset's creation time.
func (c *Checkpoint) CreateTime() uint64 {
	return c.Sigset.CreateTime
}

// Tx assembles this checkpoint's Bitcoin transaction: version 1, locktime
// 0, inputs and outputs in deque order. It returns the transaction paired
// with a deterministic estimated virtual size, equal to the sum of each
// input's worst-case witness contribution plus the transaction's own
// serialized size. Two calls against the same checkpoint state yield
// byte-identical transactions.
func (c *Checkpoint) Tx() (*wire.MsgTx, uint64, error) {
	tx := wire.NewMsgTx(txVersion)
	tx.LockTime = 0

	var estVSize uint64
	for _, in := range c.Inputs {
		txIn, err := in.ToTxIn()
		if err != nil {
			return nil, 0, err
		}
		tx.AddTxIn(txIn)
		estVSize += in.Sigs.EstVSize()
	}

	for _, out := range c.Outputs {
		cp := *out
		tx.AddTxOut(&cp)
	}

	estVSize += uint64(tx.SerializeSize())

	return tx, estVSize, nil
}
