package checkpoint

import "github.com/btcsuite/btclog"

// log is this package's logger, following the per-package logger
// convention lnd uses throughout lnwallet, channeldb, and sweep: disabled
// by default, wired up by the host binary via UseLogger.
var log = btclog.Disabled

// UseLogger lets a calling application specify a logger to use for this
// package's log statements.
func UseLogger(logger btclog.Logger) {
	log = logger
}
