package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// Table names for run history.
const (
	RunsTable        = "codeintel_runs"
	FileMetricsTable = "codeintel_file_metrics"
)

// HistoryStoreImpl records workspace runs and their per-file metrics.
type HistoryStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &HistoryStoreImpl{} // Compile-time check

// NewHistoryStore migrates the schema to the latest version and opens the store.
// The none backend yields a store that records nothing.
func NewHistoryStore(backend schema.DatabaseBackend, connStr string) (*HistoryStoreImpl, error) {
	if backend == schema.NoneBackend {
		return &HistoryStoreImpl{backend: backend}, nil
	}
	if _, err := MigrateHistory(backend, connStr, -1); err != nil {
		return nil, err
	}
	db, _, err := openDB(backend, connStr, defaultHistoryPath())
	if err != nil {
		return nil, err
	}
	return &HistoryStoreImpl{db: db, backend: backend}, nil
}

func (hs *HistoryStoreImpl) table(name string) string {
	return quoteTableName(name, hs.backend)
}

// BeginRun inserts a run row and returns its ID.
func (hs *HistoryStoreImpl) BeginRun(root string, startTime time.Time, configParams map[string]any) (int64, error) {
	if hs.db == nil {
		return 0, nil
	}
	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	args := []any{uuid.New().String(), root, formatTime(hs.backend, startTime), string(configJSON)}
	cols := "(run_uuid, root, start_time, config_params)"
	var runID int64
	if hs.backend == schema.PostgreSQLBackend {
		query := fmt.Sprintf(`INSERT INTO %s %s VALUES (%s) RETURNING run_id`, hs.table(RunsTable), cols, placeholders(hs.backend, 4))
		err = hs.db.QueryRow(query, args...).Scan(&runID)
	} else {
		query := fmt.Sprintf(`INSERT INTO %s %s VALUES (%s)`, hs.table(RunsTable), cols, placeholders(hs.backend, 4))
		var res sql.Result
		if res, err = hs.db.Exec(query, args...); err == nil {
			runID, err = res.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun stores completion time, duration and totals.
func (hs *HistoryStoreImpl) EndRun(runID int64, endTime time.Time, totals contract.RunTotals) error {
	if hs.db == nil {
		return nil
	}

	var raw any
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, hs.table(RunsTable), placeholder(hs.backend, 1))
	if err := hs.db.QueryRow(query, runID).Scan(&raw); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}
	startTime, err := scanTime(raw)
	if err != nil {
		return fmt.Errorf("failed to parse start_time: %w", err)
	}

	p := func(i int) string { return placeholder(hs.backend, i) }
	update := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, total_files_analyzed = %s, total_failures = %s,
		total_snippets = %s, primary_language = %s WHERE run_id = %s`,
		hs.table(RunsTable), p(1), p(2), p(3), p(4), p(5), p(6), p(7))
	_, err = hs.db.Exec(update,
		formatTime(hs.backend, endTime), endTime.Sub(startTime).Milliseconds(),
		totals.Files, totals.Failures, totals.Snippets, totals.PrimaryLanguage, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordFileMetrics stores the structural metrics of one file for a run.
func (hs *HistoryStoreImpl) RecordFileMetrics(runID int64, filePath string, m schema.FileRunMetrics) error {
	if hs.db == nil {
		return nil
	}
	var group any
	if m.DuplicateGroup != "" {
		group = m.DuplicateGroup
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, file_path, analysis_time, language, complexity_score,
		                element_count, line_count, is_hotspot, duplicate_group)
		VALUES (%s)
	`, hs.table(FileMetricsTable), placeholders(hs.backend, 9))
	_, err := hs.db.Exec(query,
		runID, filePath, formatTime(hs.backend, m.AnalysisTime), m.Language, m.ComplexityScore,
		m.ElementCount, m.LineCount, m.IsHotspot, group)
	if err != nil {
		return fmt.Errorf("failed to insert file metrics: %w", err)
	}
	return nil
}

// GetStatus reports run counts, time range and table row counts.
func (hs *HistoryStoreImpl) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(hs.backend),
		Connected:  hs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if hs.db == nil {
		return status, nil
	}

	for _, name := range []string{RunsTable, FileMetricsTable} {
		var n int64
		if err := hs.db.QueryRow("SELECT COUNT(*) FROM " + hs.table(name)).Scan(&n); err != nil {
			return status, fmt.Errorf("failed to count %s: %w", name, err)
		}
		status.TableSizes[name] = n
	}
	status.TotalRuns = int(status.TableSizes[RunsTable])
	if status.TotalRuns == 0 {
		return status, nil
	}

	var lastRaw, oldestRaw any
	query := fmt.Sprintf(`SELECT MAX(run_id), MAX(start_time), MIN(start_time), COALESCE(SUM(total_files_analyzed), 0) FROM %s`, hs.table(RunsTable))
	if err := hs.db.QueryRow(query).Scan(&status.LastRunID, &lastRaw, &oldestRaw, &status.TotalFilesAnalyzed); err != nil {
		return status, fmt.Errorf("failed to summarize runs: %w", err)
	}
	last := fmt.Sprintf(`SELECT root, primary_language FROM %s WHERE run_id = %s`, hs.table(RunsTable), placeholder(hs.backend, 1))
	if err := hs.db.QueryRow(last, status.LastRunID).Scan(&status.LastRoot, &status.LastLanguage); err != nil {
		return status, fmt.Errorf("failed to read run %d: %w", status.LastRunID, err)
	}
	var err error
	if status.LastRunTime, err = scanTime(lastRaw); err != nil {
		return status, err
	}
	if status.OldestRunTime, err = scanTime(oldestRaw); err != nil {
		return status, err
	}
	return status, nil
}

// GetAllRuns returns every run ordered by ID.
func (hs *HistoryStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if hs.db == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT run_id, run_uuid, root, start_time, end_time, run_duration_ms, total_files_analyzed,
		       total_failures, total_snippets, primary_language, config_params
		FROM %s ORDER BY run_id`, hs.table(RunsTable))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []schema.RunRecord
	for rows.Next() {
		var (
			r            schema.RunRecord
			start, end   any
			duration     sql.NullInt32
			configParams sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.RunUUID, &r.Root, &start, &end, &duration, &r.TotalFilesAnalyzed,
			&r.TotalFailures, &r.TotalSnippets, &r.PrimaryLanguage, &configParams); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartTime, err = scanTime(start); err != nil {
			return nil, err
		}
		if end != nil {
			t, err := scanTime(end)
			if err != nil {
				return nil, err
			}
			r.EndTime = &t
		}
		if duration.Valid {
			r.RunDurationMs = &duration.Int32
		}
		if configParams.Valid {
			r.ConfigParams = &configParams.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetAllFileMetrics returns every per-file row ordered by run and path.
func (hs *HistoryStoreImpl) GetAllFileMetrics() ([]schema.FileRunRecord, error) {
	if hs.db == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT run_id, file_path, analysis_time, language, complexity_score, element_count,
		       line_count, is_hotspot, duplicate_group
		FROM %s ORDER BY run_id, file_path`, hs.table(FileMetricsTable))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query file metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []schema.FileRunRecord
	for rows.Next() {
		var (
			r     schema.FileRunRecord
			at    any
			group sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.FilePath, &at, &r.Language, &r.ComplexityScore, &r.ElementCount,
			&r.LineCount, &r.IsHotspot, &group); err != nil {
			return nil, fmt.Errorf("failed to scan file metrics: %w", err)
		}
		if r.AnalysisTime, err = scanTime(at); err != nil {
			return nil, err
		}
		if group.Valid {
			r.DuplicateGroup = &group.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Clear deletes all run history.
func (hs *HistoryStoreImpl) Clear() error {
	if hs.db == nil {
		return nil
	}
	for _, name := range []string{FileMetricsTable, RunsTable} {
		if _, err := hs.db.Exec("DELETE FROM " + hs.table(name)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (hs *HistoryStoreImpl) Close() error {
	if hs.db != nil {
		return hs.db.Close()
	}
	return nil
}
