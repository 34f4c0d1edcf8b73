package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDBPath             = "checkpoint.db"
	defaultFeeRate            = 10
	defaultTickInterval       = "30s"
	defaultCheckpointInterval = 0 // 0 means "use the package default"
)

// config holds every knob checkpointctl exposes on its command line,
// mirroring the flat, struct-tag-driven config lnd itself loads via
// go-flags before anything else happens at startup.
type config struct {
	DBPath string `long:"db_path" description:"path to the bolt-backed checkpoint database"`

	FeeRate uint64 `long:"fee_rate" description:"fee rate, in satoshis per estimated virtual byte, charged against each checkpoint's reserve output"`

	CheckpointInterval uint64 `long:"checkpoint_interval" description:"minimum wall-clock gap in seconds between consecutive checkpoint creations (0 uses the package default)"`

	TickInterval string `long:"tick_interval" description:"how often the serve loop calls MaybeStep, as a Go duration string"`

	Signatories []string `long:"signatory" description:"hex-encoded compressed pubkey of a signatory eligible to sign the genesis and every subsequent checkpoint (repeatable)"`
}

// defaultConfig returns a config populated with the same defaults lnd's
// own loadConfig seeds before parsing the command line over top of them.
func defaultConfig() config {
	return config{
		DBPath:             defaultDBPath,
		FeeRate:            defaultFeeRate,
		CheckpointInterval: defaultCheckpointInterval,
		TickInterval:       defaultTickInterval,
	}
}

// loadConfig parses the command line into a config, starting from
// defaultConfig's values. It follows lndMain's own ErrHelp handling: a
// request for --help is not itself an error worth logging, just an exit.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if len(cfg.Signatories) == 0 {
		return nil, fmt.Errorf("at least one --signatory is required")
	}

	return &cfg, nil
}
