package chunkstore

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-level logger
func UseLogger(logger btclog.Logger) {
	log = logger
}
