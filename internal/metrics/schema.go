package metrics

import (
	"database/sql"

	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
)

const (
	SchemaVersion = 1

	dropTablesSQL = `
	   DROP INDEX IF EXISTS readings_channel;
	   DROP TABLE IF EXISTS readings;
	   DROP TABLE IF EXISTS schema_versions;`

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS readings (
	       timestamp  INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       channel    TEXT NOT NULL,
	       value      TEXT NOT NULL,
	       active     INTEGER NOT NULL CHECK (active IN (0, 1)),
	       connected  INTEGER NOT NULL CHECK (connected IN (0, 1)),
	       PRIMARY KEY (timestamp, channel)
	   );
	   CREATE INDEX IF NOT EXISTS readings_channel ON readings (channel, timestamp);`

	insertVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, datetime('now'))`

	insertReadingSQL = `
    INSERT OR REPLACE INTO readings (
        timestamp, channel, value, active, connected
    ) VALUES (?, ?, ?, ?, ?)`

	selectReadingsSQL = `
    SELECT timestamp, channel, value, active, connected
    FROM readings
    WHERE channel = ?
    ORDER BY timestamp DESC
    LIMIT ?`
)

// resetSchema drops any existing history tables and creates the current
// schema in one transaction.
func resetSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Msg("Failed to roll back schema reset")
		}
	}()

	steps := []struct {
		phase string
		sql   string
		args  []any
	}{
		{"drop_tables", dropTablesSQL, nil},
		{"create_tables", createTablesSQL, nil},
		{"record_version", insertVersionSQL, []any{SchemaVersion}},
	}
	for _, step := range steps {
		if _, err := tx.Exec(step.sql, step.args...); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Phase string
				Error string
			}{
				Phase: step.phase,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	log.Info().Int("version", SchemaVersion).Msg("History schema created")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// GetInsertReadingSQL returns the SQL to insert a reading
func GetInsertReadingSQL() string {
	return insertReadingSQL
}
