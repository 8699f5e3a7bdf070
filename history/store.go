package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"blender_mcp/logging"
)

// Record is one generation run: what was asked for, what came out, and how
// long it took. Params holds the full parameter set as JSON.
type Record struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Kind          string    `json:"kind"`
	Prompt        string    `json:"prompt,omitempty"`
	Params        string    `json:"params,omitempty"`
	Seed          int64     `json:"seed"`
	OutputPath    string    `json:"output_path,omitempty"`
	DurationMS    int       `json:"duration_ms"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Record kinds.
const (
	KindTxt2Img   = "txt2img"
	KindImg2Img   = "img2img"
	KindHunyuan3D = "hunyuan3d"
	KindRodin     = "rodin"
	KindWorkflow  = "workflow"
)

// Record statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Store persists generation records.
type Store interface {
	Insert(ctx context.Context, record Record) (int64, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByCorrelationID(ctx context.Context, correlationID string) ([]Record, error)
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// SQLiteStore is the Store backed by a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens (or creates) the history database at path, applies pending
// migrations, and returns a ready store.
func Open(path string, logger *logging.Logger) (*SQLiteStore, error) {
	// The migrator closes its connection, so migrate on a throwaway one.
	migrationDB, err := openConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}
	if err := migrateUp(migrationDB); err != nil {
		return nil, err
	}

	db, err := openConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}

	logger.Info("history database opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger.Named("history")}, nil
}

// Insert writes a record and returns its row id.
func (s *SQLiteStore) Insert(ctx context.Context, record Record) (int64, error) {
	const query = `
		INSERT INTO generations (
			correlation_id, kind, prompt, params, seed,
			output_path, duration_ms, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		record.CorrelationID,
		record.Kind,
		record.Prompt,
		record.Params,
		record.Seed,
		record.OutputPath,
		record.DurationMS,
		record.Status,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("insert generation record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

const selectColumns = `
	SELECT id, correlation_id, kind,
	       COALESCE(prompt, ''), COALESCE(params, ''), COALESCE(seed, 0),
	       COALESCE(output_path, ''), COALESCE(duration_ms, 0),
	       status, COALESCE(error_message, ''), created_at
	FROM generations`

// Recent returns the newest records first, up to limit.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent generations: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByCorrelationID returns every record sharing one correlation id, newest
// first. A workflow run produces several records under the same id.
func (s *SQLiteStore) ByCorrelationID(ctx context.Context, correlationID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE correlation_id = ?
		ORDER BY created_at DESC, id DESC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query generations by correlation id: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generations").Scan(&count); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.CorrelationID,
			&rec.Kind,
			&rec.Prompt,
			&rec.Params,
			&rec.Seed,
			&rec.OutputPath,
			&rec.DurationMS,
			&rec.Status,
			&rec.ErrorMessage,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation row: %w", err)
		}
		rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation rows: %w", err)
	}
	return records, nil
}

// NullStore is the Store used when history is disabled. Writes vanish and
// reads come back empty.
type NullStore struct{}

func (NullStore) Insert(context.Context, Record) (int64, error) { return 0, nil }
func (NullStore) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (NullStore) ByCorrelationID(context.Context, string) ([]Record, error) {
	return nil, nil
}
func (NullStore) Count(context.Context) (int64, error) { return 0, nil }
func (NullStore) Close(context.Context) error          { return nil }

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = NullStore{}
)
