package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// migration quries
	createSheetsTableSQL = `
  CREATE TABLE IF NOT EXISTS sheets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
  )`

	createRowsTableSQL = `
  CREATE TABLE IF NOT EXISTS sheet_rows (
  sheet_id INTEGER NOT NULL,
  position INTEGER NOT NULL,
  cells TEXT NOT NULL,
  FOREIGN KEY (sheet_id) REFERENCES sheets(id)
  )`

	createRowsIndexSQL = `CREATE INDEX IF NOT EXISTS sheet_rows_position ON sheet_rows (sheet_id, position)`

	createFormatsTableSQL = `
  CREATE TABLE IF NOT EXISTS sheet_formats (
  sheet_id INTEGER NOT NULL,
  position INTEGER NOT NULL,
  first_col INTEGER NOT NULL,
  last_col INTEGER NOT NULL,
  bold INTEGER NOT NULL DEFAULT 0,
  font_size REAL NOT NULL DEFAULT 0,
  fill TEXT NOT NULL DEFAULT '',
  FOREIGN KEY (sheet_id) REFERENCES sheets(id)
  )`

	// sheet queries
	createSheetSQL  = `INSERT OR IGNORE INTO sheets (name) VALUES (?)`
	getSheetIDSQL   = `SELECT id FROM sheets WHERE name = ?`
	getAllSheetsSQL = `SELECT name FROM sheets ORDER BY id`

	// row queries
	getRowsSQL      = `SELECT position, cells FROM sheet_rows WHERE sheet_id = ? ORDER BY position`
	countRowsSQL    = `SELECT COALESCE(MAX(position) + 1, 0) FROM sheet_rows WHERE sheet_id = ?`
	insertRowSQL    = `INSERT INTO sheet_rows (sheet_id, position, cells) VALUES (?, ?, ?)`
	shiftRowsSQL    = `UPDATE sheet_rows SET position = position + 1 WHERE sheet_id = ? AND position >= ?`
	shiftFormatsSQL = `UPDATE sheet_formats SET position = position + 1 WHERE sheet_id = ? AND position >= ?`
	clearRowsSQL    = `DELETE FROM sheet_rows WHERE sheet_id = ?`
	clearFormatsSQL = `DELETE FROM sheet_formats WHERE sheet_id = ?`
	insertFormatSQL = `INSERT INTO sheet_formats (sheet_id, position, first_col, last_col, bold, font_size, fill) VALUES (?, ?, ?, ?, ?, ?, ?)`
	getFormatsSQL   = `SELECT position, first_col, last_col, bold, font_size, fill FROM sheet_formats WHERE sheet_id = ? ORDER BY rowid`
)

// SQLiteWorkbook stores every sheet of the workbook in one SQLite file.
type SQLiteWorkbook struct {
	db *sql.DB
}

func NewSQLiteWorkbook(dbPath string) (*SQLiteWorkbook, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	wb := &SQLiteWorkbook{db: db}

	// run migrations
	if err := runMigrations(db, createSheetsTableSQL, createRowsTableSQL, createRowsIndexSQL, createFormatsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return wb, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	// ensure directory exists
	err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// open database
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// verify connection with database
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runs migrations on initial start
func runMigrations(db *sql.DB, tables ...string) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func (w *SQLiteWorkbook) Close() error {
	return w.db.Close()
}

// Sheet returns the named sheet, creating it on first use.
func (w *SQLiteWorkbook) Sheet(ctx context.Context, name string) (TabularStore, error) {
	if _, err := w.db.ExecContext(ctx, createSheetSQL, name); err != nil {
		return nil, storeErr(name, "create", err)
	}

	var id int64
	if err := w.db.QueryRowContext(ctx, getSheetIDSQL, name).Scan(&id); err != nil {
		return nil, storeErr(name, "open", err)
	}
	return &sqliteSheet{db: w.db, id: id, name: name}, nil
}

// SheetNames lists every sheet in creation order.
func (w *SQLiteWorkbook) SheetNames(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, getAllSheetsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		sheets = append(sheets, name)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sheets, nil
}

type sqliteSheet struct {
	db   *sql.DB
	id   int64
	name string
}

func (s *sqliteSheet) Name() string {
	return s.name
}

func (s *sqliteSheet) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, getRowsSQL, s.id)
	if err != nil {
		return nil, storeErr(s.name, "read", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var (
			position int
			raw      string
		)
		if err := rows.Scan(&position, &raw); err != nil {
			return nil, storeErr(s.name, "read", err)
		}

		var cells []string
		if err := sonic.UnmarshalString(raw, &cells); err != nil {
			return nil, storeErr(s.name, "decode", err)
		}
		// gaps left by padded inserts read back as empty rows
		for len(out) < position {
			out = append(out, nil)
		}
		out = append(out, cells)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr(s.name, "read", err)
	}
	return out, nil
}

func (s *sqliteSheet) AppendRow(ctx context.Context, row []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr(s.name, "append", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, countRowsSQL, s.id).Scan(&next); err != nil {
		return 0, storeErr(s.name, "append", err)
	}
	if err := s.insert(ctx, tx, next, row); err != nil {
		return 0, storeErr(s.name, "append", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr(s.name, "append", err)
	}
	return next, nil
}

func (s *sqliteSheet) InsertRow(ctx context.Context, index int, row []string) error {
	if index < 0 {
		return storeErr(s.name, "insert", fmt.Errorf("invalid row index %d", index))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(s.name, "insert", err)
	}
	defer tx.Rollback()

	// shift rows and their formats down
	if _, err := tx.ExecContext(ctx, shiftRowsSQL, s.id, index); err != nil {
		return storeErr(s.name, "insert", err)
	}
	if _, err := tx.ExecContext(ctx, shiftFormatsSQL, s.id, index); err != nil {
		return storeErr(s.name, "insert", err)
	}
	if err := s.insert(ctx, tx, index, row); err != nil {
		return storeErr(s.name, "insert", err)
	}

	return storeErr(s.name, "insert", tx.Commit())
}

func (s *sqliteSheet) insert(ctx context.Context, tx *sql.Tx, position int, row []string) error {
	raw, err := sonic.MarshalString(row)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, insertRowSQL, s.id, position, raw)
	return err
}

func (s *sqliteSheet) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(s.name, "clear", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, clearRowsSQL, s.id); err != nil {
		return storeErr(s.name, "clear", err)
	}
	if _, err := tx.ExecContext(ctx, clearFormatsSQL, s.id); err != nil {
		return storeErr(s.name, "clear", err)
	}

	return storeErr(s.name, "clear", tx.Commit())
}

func (s *sqliteSheet) Format(ctx context.Context, span RowSpan, style Style) error {
	_, err := s.db.ExecContext(ctx, insertFormatSQL,
		s.id, span.Row, span.FirstCol, span.LastCol, style.Bold, style.FontSize, style.Fill)
	return storeErr(s.name, "format", err)
}

// Formats returns the formatting applied to the sheet in application order.
func (s *sqliteSheet) Formats(ctx context.Context) ([]RowEmphasis, error) {
	rows, err := s.db.QueryContext(ctx, getFormatsSQL, s.id)
	if err != nil {
		return nil, storeErr(s.name, "read", err)
	}
	defer rows.Close()

	var out []RowEmphasis
	for rows.Next() {
		var e RowEmphasis
		if err := rows.Scan(&e.Span.Row, &e.Span.FirstCol, &e.Span.LastCol, &e.Style.Bold, &e.Style.FontSize, &e.Style.Fill); err != nil {
			return nil, storeErr(s.name, "read", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
