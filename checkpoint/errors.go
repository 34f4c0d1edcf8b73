package checkpoint

import "errors"

// Sentinel errors returned by the checkpoint queue's public operations,
// mirroring lnd's house style of fixed error values (e.g.
// lnwallet.ErrFundingFailed) rather than an error-code enum.
var (
	// ErrIndexOutOfBounds is returned when addressing the queue outside
	// [index+1-len, index], including any access on an empty queue.
	ErrIndexOutOfBounds = errors.New("checkpoint: index out of bounds")

	// ErrInsufficientFee is returned at advance time when the estimated
	// fee would exceed the net balance of inputs over outputs.
	ErrInsufficientFee = errors.New("checkpoint: inputs minus outputs cannot cover fee")

	// ErrNotEnoughSignatures is returned by Sign when the supplied
	// signature batch runs out before every input that needs one has
	// been covered.
	ErrNotEnoughSignatures = errors.New("checkpoint: not enough signatures supplied")

	// ErrExcessSignatures is returned by Sign when the supplied
	// signature batch has signatures left over after every eligible
	// input has been covered.
	ErrExcessSignatures = errors.New("checkpoint: excess signatures supplied")

	// ErrWrongStatus is returned when an operation requires a
	// checkpoint of a specific status (e.g. Sign requires a Signing
	// checkpoint to exist).
	ErrWrongStatus = errors.New("checkpoint: checkpoint has the wrong status for this operation")

	// ErrNoTimeContext is returned by MaybeStep if invoked without a
	// wall-clock source.
	ErrNoTimeContext = errors.New("checkpoint: no time context available")

	// ErrTooManyInputs is returned by BuildingCheckpoint.Advance when
	// the checkpoint holds more than MaxInputs inputs. Overflow
	// spilling into a sub-checkpoint is left undefined by the source
	// this module is grounded on; this module rejects rather than
	// silently truncates, per spec.
	ErrTooManyInputs = errors.New("checkpoint: too many inputs for a single checkpoint")

	// ErrTooManyOutputs is the output-side counterpart of
	// ErrTooManyInputs.
	ErrTooManyOutputs = errors.New("checkpoint: too many outputs for a single checkpoint")

	// ErrSigsetMismatch describes a caller-supplied sigset that does not
	// match the checkpoint's own frozen sigset. Nothing in this package
	// returns it: PushInput does not compare sigsets.
	ErrSigsetMismatch = errors.New("checkpoint: pushed input's sigset does not match checkpoint sigset")
)
