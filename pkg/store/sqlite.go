package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/getmockd/bizlog/pkg/record"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS biz_log_records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	biz_no     TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	sub_type   TEXT    NOT NULL DEFAULT '',
	action     TEXT    NOT NULL,
	operator   TEXT    NOT NULL DEFAULT '',
	extra      TEXT    NOT NULL DEFAULT '',
	fail       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
)`

var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_biz_log_records_type_biz_no ON biz_log_records (type, biz_no)`,
	`CREATE INDEX IF NOT EXISTS idx_biz_log_records_biz_no ON biz_log_records (biz_no)`,
	`CREATE INDEX IF NOT EXISTS idx_biz_log_records_created_at ON biz_log_records (created_at)`,
}

// SQLite stores records in the biz_log_records table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. Use ":memory:" for a
// private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	for _, stmt := range append([]string{sqliteSchema}, sqliteIndexes...) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: failed to initialize sqlite schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Flush inserts the batch in one transaction.
func (s *SQLite) Flush(ctx context.Context, _, _ string, records []record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO biz_log_records
		(id, biz_no, type, sub_type, action, operator, extra, fail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		fail := 0
		if r.Fail {
			fail = 1
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.BizNo, r.Type, r.SubType, r.Action, r.Operator, r.Extra, fail, r.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("store: insert record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Query implements Store. Structured filters run in SQL; a Where expression
// is applied to the rows afterwards.
func (s *SQLite) Query(ctx context.Context, f Filter) ([]record.Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.BizNo != "" {
		add("biz_no = ?", f.BizNo)
	}
	if f.Type != "" {
		add("type = ?", f.Type)
	}
	if f.SubType != "" {
		add("sub_type = ?", f.SubType)
	}
	if f.Operator != "" {
		add("operator = ?", f.Operator)
	}
	if f.Fail != nil {
		fail := 0
		if *f.Fail {
			fail = 1
		}
		add("fail = ?", fail)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		add("created_at < ?", f.Until.UnixNano())
	}

	q := "SELECT seq, id, biz_no, type, sub_type, action, operator, extra, fail, created_at FROM biz_log_records"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var recs []sequenced
	for rows.Next() {
		var (
			sr        sequenced
			fail      int
			createdAt int64
		)
		if err := rows.Scan(&sr.seq, &sr.rec.ID, &sr.rec.BizNo, &sr.rec.Type, &sr.rec.SubType,
			&sr.rec.Action, &sr.rec.Operator, &sr.rec.Extra, &fail, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		sr.rec.Fail = fail != 0
		sr.rec.CreatedAt = time.Unix(0, createdAt)
		recs = append(recs, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}

	return apply(recs, f)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ensure SQLite implements Store.
var _ Store = (*SQLite)(nil)
