package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS emails (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            meta TEXT NOT NULL,
            raw BLOB NOT NULL,
            read INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS attachments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email_id TEXT NOT NULL,
            filename TEXT NOT NULL,
            content_type TEXT NOT NULL,
            data BLOB NOT NULL,
            size INTEGER NOT NULL,
            FOREIGN KEY(email_id) REFERENCES emails(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_email ON attachments(email_id, filename);`,
		`CREATE INDEX IF NOT EXISTS idx_emails_read ON emails(read);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, email Email, raw []byte, attachments []AttachmentData) error {
	meta, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO emails (id, meta, raw, read, created_at)
        VALUES (?, ?, ?, ?, ?);`,
		email.ID,
		string(meta),
		raw,
		email.Read,
		email.Time.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}

	for _, attachment := range attachments {
		_, err = tx.ExecContext(ctx, `INSERT INTO attachments
            (email_id, filename, content_type, data, size)
            VALUES (?, ?, ?, ?, ?);`,
			email.ID,
			attachment.GeneratedFileName,
			attachment.ContentType,
			attachment.Data,
			int64(len(attachment.Data)),
		)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit email: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM emails WHERE id = ?;`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// List returns every stored email in arrival order.
func (s *Store) List(ctx context.Context) ([]Email, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT meta, read FROM emails ORDER BY seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	emails := []Email{}
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("list emails: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

func (s *Store) Get(ctx context.Context, id string) (Email, error) {
	row := s.db.QueryRowContext(ctx, `SELECT meta, read FROM emails WHERE id = ?;`, id)
	email, err := scanEmail(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Email{}, ErrNotFound
		}
		return Email{}, fmt.Errorf("get email: %w", err)
	}
	return email, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE emails SET read = 1 WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(result, "mark read")
}

// MarkAllRead flags every unread email and reports how many changed.
func (s *Store) MarkAllRead(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE emails SET read = 1 WHERE read = 0;`)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return count, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete email: %w", err)
	}
	return requireAffected(result, "delete email")
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM emails;`); err != nil {
		return fmt.Errorf("delete all emails: %w", err)
	}
	return nil
}

// Attachment opens the stored bytes of one attachment of an email.
func (s *Store) Attachment(ctx context.Context, id, filename string) (string, io.ReadCloser, error) {
	var contentType string
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT content_type, data FROM attachments
        WHERE email_id = ? AND filename = ?
        ORDER BY id LIMIT 1;`, id, filename).Scan(&contentType, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("get attachment: %w", err)
	}
	return contentType, io.NopCloser(bytes.NewReader(data)), nil
}

// Raw opens the original message source as received.
func (s *Store) Raw(ctx context.Context, id string) (io.ReadCloser, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT raw FROM emails WHERE id = ?;`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raw email: %w", err)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (Email, error) {
	var meta string
	var read bool
	if err := row.Scan(&meta, &read); err != nil {
		return Email{}, err
	}
	var email Email
	if err := json.Unmarshal([]byte(meta), &email); err != nil {
		return Email{}, fmt.Errorf("decode email: %w", err)
	}
	email.Read = read
	return email, nil
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
