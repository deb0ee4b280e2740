package macro

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Repository defines the interface for macro persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Library entries
	GetByID(ctx context.Context, id string) (*StoredMacro, error)
	List(ctx context.Context) ([]StoredMacro, error)
	Create(ctx context.Context, m *StoredMacro) error
	Update(ctx context.Context, m *StoredMacro) error
	Delete(ctx context.Context, id string) error

	// Run logging
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, vesselID string, limit int) ([]Run, error)
}

// macroColumns is the SELECT column list for macro queries.
const macroColumns = `id, name, tree, node_count, created_at, updated_at`

// runColumns is the SELECT column list for run queries.
const runColumns = `id, vessel_id, entry_id, macro_name, started_at, completed_at,
			status, ticks, last_node, warnings, duration_ms`

// runTimeFormat keeps run timestamps fixed-width so they sort as text.
const runTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SQLiteRepository implements Repository using SQLite.
// Trees are stored as YAML so they stay readable in the database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a macro by its entry ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*StoredMacro, error) {
	query := `SELECT ` + macroColumns + ` FROM macros WHERE id = ?`

	m, err := scanMacro(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying macro by id: %w", err)
	}
	return m, nil
}

// List retrieves all macros ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]StoredMacro, error) {
	query := `SELECT ` + macroColumns + ` FROM macros ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying macros: %w", err)
	}
	defer rows.Close()

	var macros []StoredMacro
	for rows.Next() {
		m, scanErr := scanMacro(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning macro: %w", scanErr)
		}
		macros = append(macros, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating macros: %w", err)
	}
	return macros, nil
}

// Create inserts a new macro.
func (r *SQLiteRepository) Create(ctx context.Context, m *StoredMacro) error {
	tree, err := yaml.Marshal(m.Tree)
	if err != nil {
		return fmt.Errorf("marshalling tree: %w", err)
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO macros (id, name, tree, node_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.Name,
		string(tree),
		m.Nodes,
		m.CreatedAt.Format(time.RFC3339),
		m.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting macro: %w", err)
	}
	return nil
}

// Update replaces an existing macro's name and tree.
func (r *SQLiteRepository) Update(ctx context.Context, m *StoredMacro) error {
	tree, err := yaml.Marshal(m.Tree)
	if err != nil {
		return fmt.Errorf("marshalling tree: %w", err)
	}

	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE macros SET name = ?, tree = ?, node_count = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		string(tree),
		m.Nodes,
		m.UpdatedAt.Format(time.RFC3339),
		m.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("updating macro: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a macro by entry ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM macros WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting macro: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	warnings, err := marshalWarnings(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshalling warnings: %w", err)
	}

	query := `
		INSERT INTO macro_runs (
			id, vessel_id, entry_id, macro_name, started_at, completed_at,
			status, ticks, last_node, warnings, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.VesselID,
		nullableString(run.EntryID),
		run.MacroName,
		run.StartedAt.UTC().Format(runTimeFormat),
		nullableTime(run.CompletedAt),
		string(run.Status),
		run.Ticks,
		nullableString(run.LastNode),
		warnings,
		nullableInt(run.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run record.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *Run) error {
	warnings, err := marshalWarnings(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshalling warnings: %w", err)
	}

	query := `
		UPDATE macro_runs SET
			completed_at = ?, status = ?, ticks = ?, last_node = ?,
			warnings = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableTime(run.CompletedAt),
		string(run.Status),
		run.Ticks,
		nullableString(run.LastNode),
		warnings,
		nullableInt(run.DurationMS),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM macro_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent runs for a vessel, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, vesselID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + runColumns + `
		FROM macro_runs
		WHERE vessel_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, vesselID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMacro(scanner rowScanner) (*StoredMacro, error) {
	var m StoredMacro
	var tree string
	var createdAt, updatedAt string

	if err := scanner.Scan(&m.ID, &m.Name, &tree, &m.Nodes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		m.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		m.UpdatedAt = t
	}

	if err := yaml.Unmarshal([]byte(tree), &m.Tree); err != nil {
		return nil, fmt.Errorf("unmarshalling tree: %w", err)
	}
	return &m, nil
}

func scanRun(scanner rowScanner) (*Run, error) {
	var run Run
	var startedAt, status string
	var entryID, completedAt, lastNode, warnings sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&run.ID,
		&run.VesselID,
		&entryID,
		&run.MacroName,
		&startedAt,
		&completedAt,
		&status,
		&run.Ticks,
		&lastNode,
		&warnings,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, completedAt.String); parseErr == nil {
			run.CompletedAt = &t
		}
	}
	if entryID.Valid {
		run.EntryID = &entryID.String
	}
	if lastNode.Valid {
		run.LastNode = &lastNode.String
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		run.DurationMS = &d
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshalling warnings: %w", err)
		}
	}
	return &run, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(runTimeFormat), Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func marshalWarnings(warnings []string) (sql.NullString, error) {
	if len(warnings) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
