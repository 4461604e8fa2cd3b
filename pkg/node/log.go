package node

import "github.com/btcsuite/btclog"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests it.
var log = btclog.Disabled

// UseLogger sets the package-level logger
func UseLogger(logger btclog.Logger) {
	log = logger
}
