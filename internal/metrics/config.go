package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	backupDirName  = "backups"

	// Batches kept in memory while flushes fail
	maxBufferedBatches = 20
)

type Config struct {
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

func NewConfig(cfg config.History) Config {
	return Config{
		DBPath:       cfg.DBPath,
		BackupDir:    filepath.Join(filepath.Dir(cfg.DBPath), backupDirName),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.FlushInterval(),
		Enabled:      cfg.Enabled,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate when history is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch size and timeout must be positive")
	}

	return nil
}

// BufferLimit is the number of rows held before the oldest are dropped.
func (c Config) BufferLimit() int {
	return max(c.BatchSize, 1) * maxBufferedBatches
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
