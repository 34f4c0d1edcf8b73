package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/umbracustody/checkpointqueue/checkpoint"
	"github.com/umbracustody/checkpointqueue/store"
)

// serve runs the checkpoint queue's scheduler tick until interrupted,
// persisting the queue after every tick. MaybeStep itself is
// the single-threaded, non-concurrent state machine spec §5 requires; the
// ticker and ConcurrentQueue here exist only to hand wall-clock events
// into that single call site safely, the way lnd's own subsystems hand
// goroutine-sourced events into a single select loop rather than locking
// shared state, grounded on the handoff pattern lnd/queue.ConcurrentQueue
// implements for exactly this purpose.
func serve(q *checkpoint.CheckpointQueue, db *store.DB, interval time.Duration) error {
	tick := ticker.New(interval)
	tick.Resume()
	defer tick.Stop()

	pending := queue.NewConcurrentQueue(10)
	pending.Start()
	defer pending.Stop()

	go func() {
		for t := range tick.Ticks() {
			pending.ChanIn() <- t
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	for {
		select {
		case <-pending.ChanOut():
			if err := q.MaybeStep(); err != nil {
				return fmt.Errorf("stepping checkpoint queue: %w", err)
			}
			if err := db.PutQueue(q); err != nil {
				return fmt.Errorf("persisting checkpoint queue: %w", err)
			}

		case <-sigCh:
			return nil
		}
	}
}
