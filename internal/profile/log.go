package profile

import (
	"github.com/btcsuite/btclog"
)

// log is the package logger, disabled until the caller wires a backend.
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog turns off all package log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger routes package log output through the given logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
