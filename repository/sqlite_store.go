package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tieubaoca/edu-assistant/types"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	document_hash TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '',
	upload_timestamp TEXT NOT NULL,
	UNIQUE(user_id, document_hash)
);
CREATE INDEX IF NOT EXISTS idx_documents_user_time ON documents(user_id, upload_timestamp DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_user_time ON audit_logs(user_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	user_query TEXT NOT NULL,
	ai_response TEXT NOT NULL,
	feedback_category TEXT NOT NULL,
	rating INTEGER NOT NULL,
	feedback_text TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
`

// SQLiteStore provides the metadata repositories over one sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies the schema to db and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) DocumentRepo() DocumentRepo {
	return &sqliteDocumentRepo{db: s.db}
}

func (s *SQLiteStore) AuditRepo() AuditRepo {
	return &sqliteAuditRepo{db: s.db}
}

func (s *SQLiteStore) FeedbackRepo() FeedbackRepo {
	return &sqliteFeedbackRepo{db: s.db}
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqliteDocumentRepo struct {
	db *sql.DB
}

func (r *sqliteDocumentRepo) Create(ctx context.Context, doc *types.Document) error {
	if doc.UploadTimestamp.IsZero() {
		doc.UploadTimestamp = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (user_id, filename, document_hash, chunk_count, metadata, upload_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.UserID, doc.Filename, doc.DocumentHash, doc.ChunkCount, doc.Metadata, formatTime(doc.UploadTimestamp))
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrConstraintViolation
		}
		return fmt.Errorf("inserting document: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		doc.ID = strconv.FormatInt(id, 10)
	}
	return nil
}

func (r *sqliteDocumentRepo) GetByHash(ctx context.Context, userID, hash string) (*types.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, document_hash, chunk_count, metadata, upload_timestamp
		FROM documents WHERE user_id = ? AND document_hash = ?`, userID, hash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return doc, nil
}

func (r *sqliteDocumentRepo) ListByUser(ctx context.Context, userID string) ([]types.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, filename, document_hash, chunk_count, metadata, upload_timestamp
		FROM documents WHERE user_id = ?
		ORDER BY upload_timestamp DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *sqliteDocumentRepo) DeleteByFilename(ctx context.Context, userID, filename string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ? AND filename = ?`, userID, filename)
	if err != nil {
		return 0, fmt.Errorf("deleting document: %w", err)
	}
	return res.RowsAffected()
}

func (r *sqliteDocumentRepo) DeleteByHash(ctx context.Context, userID, hash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ? AND document_hash = ?`, userID, hash)
	if err != nil {
		return 0, fmt.Errorf("deleting document: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var (
		doc       types.Document
		id        int64
		timestamp string
	)
	if err := row.Scan(&id, &doc.UserID, &doc.Filename, &doc.DocumentHash, &doc.ChunkCount, &doc.Metadata, &timestamp); err != nil {
		return nil, err
	}
	doc.ID = strconv.FormatInt(id, 10)
	doc.UploadTimestamp = parseTime(timestamp)
	return &doc, nil
}

type sqliteAuditRepo struct {
	db *sql.DB
}

func (r *sqliteAuditRepo) Log(ctx context.Context, entry *types.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action, metadata, timestamp) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.Action, entry.Metadata, formatTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func (r *sqliteAuditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]types.AuditEntry, error) {
	query := `SELECT user_id, action, metadata, timestamp FROM audit_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var (
			e         types.AuditEntry
			timestamp string
		)
		if err := rows.Scan(&e.UserID, &e.Action, &e.Metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Timestamp = parseTime(timestamp)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type sqliteFeedbackRepo struct {
	db *sql.DB
}

func (r *sqliteFeedbackRepo) Save(ctx context.Context, feedback *types.Feedback) error {
	if !types.ValidFeedbackCategory(feedback.Category) {
		return fmt.Errorf("%w: unknown feedback category %q", types.ErrInvalidInput, feedback.Category)
	}
	if feedback.Timestamp.IsZero() {
		feedback.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, user_query, ai_response, feedback_category, rating, feedback_text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		feedback.UserID, feedback.Question, feedback.Response, feedback.Category,
		feedback.Rating, feedback.Text, formatTime(feedback.Timestamp))
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (r *sqliteFeedbackRepo) Stats(ctx context.Context, userID string) (*types.FeedbackStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT feedback_category, rating FROM feedback WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var all []types.Feedback
	for rows.Next() {
		var f types.Feedback
		if err := rows.Scan(&f.Category, &f.Rating); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		all = append(all, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summarizeFeedback(all), nil
}
