package checkpoint

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/wire"

	"github.com/umbracustody/checkpointqueue/sigset"
)

// CheckpointQueue is the top-level aggregate: an ordered sequence of
// checkpoints addressed by a monotonically increasing logical index, plus
// the scheduler that advances it.
//
// Checkpoints are only ever appended; the queue never deletes one. Its
// backing slice therefore plays the role of the append-only deque the
// source this module is grounded on keeps in persistent storage — see
// store.DB for the kvdb-backed persistence layer that wraps this type for
// production use.
type CheckpointQueue struct {
	cfg *Config

	// queue holds every checkpoint this aggregate has ever created,
	// oldest first. Its length is never reduced.
	queue []*Checkpoint

	// index is the logical index of the newest checkpoint in queue.
	index uint32
}

// New constructs an empty CheckpointQueue from cfg. Config's zero-valued
// constants are filled with spec defaults; Clock and SigsetBuilder must
// be supplied by the caller.
func New(cfg *Config) *CheckpointQueue {
	cfg.populateDefaults()
	return &CheckpointQueue{cfg: cfg}
}

// Index returns the logical index of the newest checkpoint.
func (q *CheckpointQueue) Index() uint32 {
	return q.index
}

// Restore reconstructs a CheckpointQueue from previously persisted state:
// the logical index of the newest checkpoint and the full backing slice,
// oldest first. It is the counterpart store.DB uses to load queue state
// back into memory; callers outside store should use New instead.
func Restore(cfg *Config, index uint32, checkpoints []*Checkpoint) *CheckpointQueue {
	cfg.populateDefaults()
	return &CheckpointQueue{cfg: cfg, index: index, queue: checkpoints}
}

// Snapshot returns the queue's full persisted state: the logical index of
// the newest checkpoint and the backing slice, oldest first. The returned
// slice aliases the queue's own storage and must not be mutated by the
// caller.
func (q *CheckpointQueue) Snapshot() (index uint32, checkpoints []*Checkpoint) {
	return q.index, q.queue
}

// physicalIndex converts a logical index into a position within q.queue,
// guarding explicitly against the empty-queue underflow noted in spec §9:
// start = index + 1 - len underflows if len == 0, so that case is
// rejected up front rather than allowed to wrap.
func (q *CheckpointQueue) physicalIndex(logical uint32) (int, error) {
	if len(q.queue) == 0 {
		return 0, ErrIndexOutOfBounds
	}

	start := q.index + 1 - uint32(len(q.queue))
	if logical > q.index || logical < start {
		return 0, ErrIndexOutOfBounds
	}
	return int(logical - start), nil
}

// Get returns the checkpoint at logical index.
func (q *CheckpointQueue) Get(logical uint32) (*Checkpoint, error) {
	idx, err := q.physicalIndex(logical)
	if err != nil {
		return nil, err
	}
	return q.queue[idx], nil
}

// IndexedCheckpoint pairs a checkpoint with its logical index.
type IndexedCheckpoint struct {
	Index      uint32
	Checkpoint *Checkpoint
}

// All returns every checkpoint in the queue, newest first.
func (q *CheckpointQueue) All() []IndexedCheckpoint {
	out := make([]IndexedCheckpoint, 0, len(q.queue))
	for i := len(q.queue) - 1; i >= 0; i-- {
		logical := q.index - uint32(len(q.queue)-1-i)
		out = append(out, IndexedCheckpoint{Index: logical, Checkpoint: q.queue[i]})
	}
	return out
}

// Completed returns the prefix of the queue (oldest first) whose status
// is Complete, stopping at the first non-Complete checkpoint.
func (q *CheckpointQueue) Completed() []*Checkpoint {
	var out []*Checkpoint
	for _, cp := range q.queue {
		if cp.Status != StatusComplete {
			break
		}
		out = append(out, cp)
	}
	return out
}

// CompletedTxs returns the assembled transaction of every Complete
// checkpoint, in the same order as Completed.
func (q *CheckpointQueue) CompletedTxs() ([]*wire.MsgTx, error) {
	completed := q.Completed()
	out := make([]*wire.MsgTx, 0, len(completed))
	for _, cp := range completed {
		tx, _, err := cp.Tx()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Signing returns the second-newest checkpoint iff its status is Signing.
func (q *CheckpointQueue) Signing() (*SigningCheckpoint, error) {
	if len(q.queue) < 2 {
		return nil, nil
	}

	cp, err := q.Get(q.index - 1)
	if err != nil {
		return nil, err
	}
	if cp.Status != StatusSigning {
		return nil, nil
	}
	return &SigningCheckpoint{cp: cp, cfg: q.cfg}, nil
}

// Building returns the newest checkpoint, which must be Building when the
// queue is non-empty.
func (q *CheckpointQueue) Building() (*BuildingCheckpoint, error) {
	cp, err := q.Get(q.index)
	if err != nil {
		return nil, err
	}
	if cp.Status != StatusBuilding {
		return nil, fmt.Errorf("%w: newest checkpoint is %s, not building",
			ErrWrongStatus, cp.Status)
	}
	return &BuildingCheckpoint{cp: cp, cfg: q.cfg}, nil
}

// ActiveSigset returns the signatory set of the current Building
// checkpoint.
func (q *CheckpointQueue) ActiveSigset() (*sigset.SignatorySet, error) {
	building, err := q.Building()
	if err != nil {
		return nil, err
	}
	return building.Checkpoint().Sigset, nil
}

// Sigset returns the signatory set frozen for the checkpoint at logical
// index.
func (q *CheckpointQueue) Sigset(logical uint32) (*sigset.SignatorySet, error) {
	cp, err := q.Get(logical)
	if err != nil {
		return nil, err
	}
	return cp.Sigset, nil
}

// ToSign forwards to the Signing checkpoint, if any.
func (q *CheckpointQueue) ToSign(xpub *hdkeychain.ExtendedKey) ([]SigHashWithIndex, error) {
	signing, err := q.Signing()
	if err != nil {
		return nil, err
	}
	if signing == nil {
		return nil, fmt.Errorf("%w: no checkpoint to be signed", ErrWrongStatus)
	}
	return signing.ToSign(xpub)
}

// Sign forwards to the Signing checkpoint and, if it becomes fully
// signed, advances it to Complete.
func (q *CheckpointQueue) Sign(xpub *hdkeychain.ExtendedKey, sigs [][]byte) error {
	signing, err := q.Signing()
	if err != nil {
		return err
	}
	if signing == nil {
		return fmt.Errorf("%w: no checkpoint to be signed", ErrWrongStatus)
	}

	if err := signing.Sign(xpub, sigs); err != nil {
		return err
	}

	if signing.Done() {
		return signing.Advance()
	}
	return nil
}

// MaybeStep is the scheduler tick. It is a pure function of (queue state,
// sig_keys as captured by cfg.SigsetBuilder, now) — deterministic, no
// concurrent mutation — because it runs inside a replicated state
// machine.
func (q *CheckpointQueue) MaybeStep() error {
	if q.cfg.Clock == nil {
		return ErrNoTimeContext
	}

	signing, err := q.Signing()
	if err != nil {
		return err
	}
	if signing != nil {
		// A Signing checkpoint already exists; wait for its
		// signatures.
		return nil
	}

	if len(q.queue) > 0 {
		building, err := q.Building()
		if err != nil {
			return err
		}
		cp := building.Checkpoint()

		now := uint64(q.cfg.Clock.Now().Unix())
		elapsed := now - cp.CreateTime()
		if elapsed < q.cfg.CheckpointInterval {
			return nil
		}

		var minDeposits int
		if q.index > 0 {
			minDeposits = 1
		}
		hasPendingDeposit := len(cp.Inputs) > minDeposits
		hasPendingWithdrawal := len(cp.Outputs) > 0

		if !hasPendingDeposit && !hasPendingWithdrawal {
			return nil
		}
	}

	pushed, err := q.maybePush()
	if err != nil {
		return err
	}
	if pushed == nil {
		// No viable signatory set; nothing to do.
		return nil
	}

	if q.index > 0 {
		predecessor, err := q.Get(q.index - 1)
		if err != nil {
			return err
		}
		signingPredecessor, err := (&BuildingCheckpoint{cp: predecessor, cfg: q.cfg}).Advance()
		if err != nil {
			return err
		}

		tx, _, err := signingPredecessor.Checkpoint().Tx()
		if err != nil {
			return err
		}
		reserveValue := signingPredecessor.Checkpoint().Outputs[0].Value
		outpoint := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
		predecessorSigset := signingPredecessor.Checkpoint().Sigset

		building, err := q.Building()
		if err != nil {
			return err
		}
		if err := building.PushInput(
			outpoint, predecessorSigset, sigset.NullAddress,
			uint64(reserveValue),
		); err != nil {
			return err
		}
	}

	return nil
}

// maybePush attempts to create a new Building checkpoint governed by a
// freshly built signatory set. It returns (nil, nil) if no viable sigset
// is available — that is never surfaced to callers as an error.
func (q *CheckpointQueue) maybePush() (*BuildingCheckpoint, error) {
	logical := q.index
	if len(q.queue) > 0 {
		logical = q.index + 1
	}

	now := uint64(q.cfg.Clock.Now().Unix())
	set, err := q.cfg.SigsetBuilder.BuildSignatorySet(logical, now)
	if err != nil {
		return nil, err
	}

	if set.PossibleVP() == 0 || !set.HasQuorum() {
		return nil, nil
	}

	q.index = logical
	q.queue = append(q.queue, &Checkpoint{
		Status: StatusBuilding,
		Sigset: set,
	})

	return &BuildingCheckpoint{cp: q.queue[len(q.queue)-1], cfg: q.cfg}, nil
}
