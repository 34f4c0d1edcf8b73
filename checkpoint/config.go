package checkpoint

import (
	"github.com/lightningnetwork/lnd/clock"

	"github.com/umbracustody/checkpointqueue/sigset"
)

// Default values for the configured constants of spec §6.
const (
	// DefaultCheckpointInterval is the minimum wall-clock gap in
	// seconds between consecutive checkpoint creations.
	DefaultCheckpointInterval = 600

	// DefaultMaxInputs is the soft cap on inputs per checkpoint.
	DefaultMaxInputs = 50

	// DefaultMaxOutputs is the soft cap on outputs per checkpoint.
	DefaultMaxOutputs = 200
)

// Config bundles the checkpoint queue's external collaborators and
// configured constants, the way lnd subsystems (e.g. sweep.UtxoSweeper)
// take a Config struct at construction rather than reaching for package
// globals.
type Config struct {
	// FeeRate is the fee, in satoshis per estimated virtual byte,
	// charged against every checkpoint's reserve output.
	FeeRate uint64

	// MaxInputs is the cap on inputs a single checkpoint may hold at
	// advance time.
	MaxInputs int

	// MaxOutputs is the cap on outputs a single checkpoint may hold at
	// advance time.
	MaxOutputs int

	// CheckpointInterval is the minimum wall-clock gap, in seconds,
	// between consecutive checkpoint creations.
	CheckpointInterval uint64

	// Clock supplies the current wall-clock time to the scheduler.
	Clock clock.Clock

	// SigsetBuilder constructs the frozen signatory set for a new
	// checkpoint at a given logical index.
	SigsetBuilder sigset.Builder
}

// populateDefaults fills zero-valued MaxInputs, MaxOutputs and
// CheckpointInterval with their defaults, leaving FeeRate and the
// collaborators (Clock, SigsetBuilder) untouched.
func (c *Config) populateDefaults() {
	if c.MaxInputs == 0 {
		c.MaxInputs = DefaultMaxInputs
	}
	if c.MaxOutputs == 0 {
		c.MaxOutputs = DefaultMaxOutputs
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
}
