// Command checkpointctl runs a checkpoint.CheckpointQueue against a
// kvdb-backed store, ticking MaybeStep on a fixed wall-clock interval. It
// exists to exercise the checkpoint package end-to-end with real
// dependencies (a real kvdb backend, a real clock, real signatory
// pubkeys) the way lnd's own cmd/lncli and lnd binaries exercise the
// library packages beneath them.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/umbracustody/checkpointqueue/checkpoint"
	"github.com/umbracustody/checkpointqueue/sigset"
	"github.com/umbracustody/checkpointqueue/store"
)

// dbOpenTimeout bounds how long opening the bolt backend may block,
// matching the conservative timeout lnd's channeldb.Open uses against a
// potentially lock-held database file.
const dbOpenTimeout = 10 * time.Second

func main() {
	if err := checkpointCtlMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// checkpointCtlMain is the true entry point, split out from main so that
// deferred cleanups run even when a fatal error sends us to os.Exit,
// matching the lndMain/main split in the package this tool is grounded on.
func checkpointCtlMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	signatories, err := parseSignatories(cfg.Signatories)
	if err != nil {
		return fmt.Errorf("parsing --signatory flags: %w", err)
	}

	backend, err := kvdb.Create(
		kvdb.BoltBackendName, cfg.DBPath, true, dbOpenTimeout,
	)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}

	db, err := store.Open(backend)
	if err != nil {
		backend.Close()
		return fmt.Errorf("initializing checkpoint store: %w", err)
	}
	defer db.Close()

	startupCheck := healthcheck.NewObservation(
		"checkpoint store",
		func() error {
			_, err := db.FetchQueue(&checkpoint.Config{})
			return err
		},
		3*time.Second, // interval between retries
		dbOpenTimeout, // per-attempt timeout
		time.Second,   // backoff
		1,             // retries
	)
	monitor := healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{startupCheck},
	})
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("checkpoint store failed health check: %w", err)
	}
	defer monitor.Stop()

	tickInterval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil {
		return fmt.Errorf("parsing --tick_interval: %w", err)
	}

	qCfg := &checkpoint.Config{
		FeeRate:            cfg.FeeRate,
		CheckpointInterval: cfg.CheckpointInterval,
		Clock:              clock.NewDefaultClock(),
		SigsetBuilder:      &sigset.StaticBuilder{Signatories: signatories},
	}

	queue, err := db.FetchQueue(qCfg)
	if err != nil {
		return fmt.Errorf("loading checkpoint queue: %w", err)
	}

	return serve(queue, db, tickInterval)
}

// parseSignatories decodes a list of hex-encoded compressed pubkeys into
// signatories of equal voting power, suitable for local development.
func parseSignatories(hexKeys []string) ([]sigset.Signatory, error) {
	out := make([]sigset.Signatory, 0, len(hexKeys))
	for _, h := range hexKeys {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", h, err)
		}
		pubKey, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", h, err)
		}
		out = append(out, sigset.Signatory{PubKey: pubKey, VotingPower: 1})
	}
	return out, nil
}
