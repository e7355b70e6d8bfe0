package cmd

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"

	"github.com/live-labs/dirvault/internal/engine"
	"github.com/live-labs/dirvault/internal/journal"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/profile"
	"github.com/live-labs/dirvault/internal/storage"
	"github.com/live-labs/dirvault/internal/vault"
)

// logMaxSize rolls the log file once when it grows past this.
const logMaxSize = 10 << 20

// InitLogging routes every package's log output to
// <root>/logs/dirvault.log. When the file cannot be opened the packages
// stay on their disabled loggers; a vault command never fails over
// logging.
func InitLogging(root string, debug bool) {
	dir := filepath.Join(root, "logs")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return
	}
	path := filepath.Join(dir, "dirvault.log")
	if info, err := os.Stat(path); err == nil && info.Size() > logMaxSize {
		os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return
	}

	backend := btclog.NewBackend(f)
	level := btclog.LevelInfo
	if debug {
		level = btclog.LevelDebug
	}

	wire := map[string]func(btclog.Logger){
		"VAULT": vault.UseLogger,
		"PROF":  profile.UseLogger,
		"ENGN":  engine.UseLogger,
		"STOR":  storage.UseLogger,
		"META":  metastore.UseLogger,
		"JRNL":  journal.UseLogger,
	}
	for tag, use := range wire {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}
