// Package history keeps an append-only DuckDB table of task outcomes, one
// row per task per run.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/models"
)

const tableName = "task_history"

// Entry is one stored row.
type Entry struct {
	RecordedAt time.Time `json:"recordedAt"`
	models.TaskRow
}

// Store is the DuckDB-backed history.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	log      logrus.FieldLogger
}

// Open opens or creates the history database at path.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	return open(path, false, logger)
}

// OpenReadOnly opens an existing history database for queries only.
func OpenReadOnly(path string, logger logrus.FieldLogger) (*Store, error) {
	return open(path, true, logger)
}

func open(path string, readOnly bool, logger logrus.FieldLogger) (*Store, error) {
	log := logging.OrDiscard(logger).WithFields(logrus.Fields{
		"component": "history",
		"path":      path,
	})

	dsn := path
	if readOnly {
		dsn += "?access_mode=read_only"
	}
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.WithError(err).Debugf("Pragma %q failed", pragma)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	s := &Store{db: db, path: path, readOnly: readOnly, log: log}

	if !readOnly {
		if err := s.createTable(); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Debug("History database opened")
	return s, nil
}

func (s *Store) createTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			recorded_at    TIMESTAMP NOT NULL,
			run_id         VARCHAR,
			process_start  TIMESTAMP,
			task_id        VARCHAR NOT NULL,
			data_folder    VARCHAR,
			output_folder  VARCHAR,
			output_file    VARCHAR,
			system_id      INTEGER,
			remote_id      VARCHAR,
			uploaded       BOOLEAN,
			downloaded     BOOLEAN,
			remote_version VARCHAR,
			result         VARCHAR
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Append stores rows with the same recording time using the DuckDB appender.
func (s *Store) Append(ctx context.Context, rows []models.TaskRow, recordedAt time.Time) error {
	if s.readOnly {
		return fmt.Errorf("history %s is open read-only", s.path)
	}
	if len(rows) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", tableName)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i, r := range rows {
			err := appender.AppendRow(
				recordedAt.UTC(),
				r.RunID,
				r.ProcessStart.UTC(),
				r.TaskID,
				r.DataFolder,
				r.OutputFolder,
				r.OutputFile,
				int32(r.SystemID),
				r.RemoteID,
				r.Uploaded,
				r.Downloaded,
				r.RemoteVersion,
				r.Result,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.log.WithField("rows", len(rows)).Debug("Appended task history")
	return nil
}

const selectColumns = `recorded_at, run_id, process_start, task_id, data_folder, output_folder,
	output_file, system_id, remote_id, uploaded, downloaded, remote_version, result`

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM `+tableName+`
		ORDER BY recorded_at DESC, process_start DESC, task_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForTask returns every row recorded for taskID, oldest first.
func (s *Store) ForTask(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM `+tableName+`
		WHERE task_id = ?
		ORDER BY recorded_at, process_start`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return int(n), nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			systemID      sql.NullInt32
			start         sql.NullTime
			runID         sql.NullString
			dataFolder    sql.NullString
			outputFolder  sql.NullString
			outputFile    sql.NullString
			remoteID      sql.NullString
			remoteVersion sql.NullString
			result        sql.NullString
			uploaded      sql.NullBool
			downloaded    sql.NullBool
		)
		if err := rows.Scan(
			&e.RecordedAt, &runID, &start, &e.TaskID, &dataFolder, &outputFolder,
			&outputFile, &systemID, &remoteID, &uploaded, &downloaded, &remoteVersion, &result,
		); err != nil {
			return nil, err
		}
		e.RunID = runID.String
		e.ProcessStart = start.Time
		e.DataFolder = dataFolder.String
		e.OutputFolder = outputFolder.String
		e.OutputFile = outputFile.String
		e.SystemID = int(systemID.Int32)
		e.RemoteID = remoteID.String
		e.Uploaded = uploaded.Bool
		e.Downloaded = downloaded.Bool
		e.RemoteVersion = remoteVersion.String
		e.Result = result.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path is the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. The file is kept.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
