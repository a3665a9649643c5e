package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
)

const (
	archivePattern    = "history_v*_*.db"
	archiveTimeFormat = "20060102T150405Z"

	// Archives kept in the backup directory
	maxArchives = 3
)

// migrateSchema rebuilds the history schema when the stored version differs
// from SchemaVersion. Rows written under another version are archived first.
func migrateSchema(db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("History schema is current")
		return nil
	}

	if version != 0 {
		log.Warn().
			Int("found", version).
			Int("expected", SchemaVersion).
			Msg("History schema changed, archiving stored readings")

		if err := archiveHistory(db, cfg.BackupDir, version, log); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "archive",
				Path:  cfg.BackupDir,
				Error: err.Error(),
			})
		}
		pruneArchives(cfg.BackupDir, maxArchives, log)
	}

	return resetSchema(db, log)
}

// archiveHistory copies the database into dir as history_v<version>_<utc>.db.
func archiveHistory(db *sql.DB, dir string, version int, log logger.Logger) error {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("history_v%d_%s.db",
		version, time.Now().UTC().Format(archiveTimeFormat)))

	// VACUUM INTO takes a literal, not a bound parameter
	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))
	if _, err := db.Exec(stmt); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}

	log.Info().Str("path", path).Int("version", version).Msg("History archived")

	return nil
}

// pruneArchives removes all but the newest keep archives in dir.
func pruneArchives(dir string, keep int, log logger.Logger) {
	paths, err := filepath.Glob(filepath.Join(dir, archivePattern))
	if err != nil || len(paths) <= keep {
		return
	}

	sort.Slice(paths, func(i, j int) bool {
		return archiveStamp(paths[i]) > archiveStamp(paths[j])
	})

	for _, path := range paths[keep:] {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove old history archive")
			continue
		}
		log.Debug().Str("path", path).Msg("Removed old history archive")
	}
}

func archiveStamp(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".db")
	return name[strings.LastIndex(name, "_")+1:]
}
