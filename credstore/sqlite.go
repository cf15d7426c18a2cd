package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credstore/migrations"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RunMigrations applies the embedded schema to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// SQLiteStore implements [goIdentity.CredentialStore].
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at dsn, migrates it and returns a store. The
// returned store owns the connection; call Close when done.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway, and ":memory:" databases are
	// per-connection.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT identity_id, email, username, credential, iterations, is_verified FROM credentials`

// Get resolves identifier as an email when it contains "@", otherwise as a
// username. Matching is case-insensitive.
func (s *SQLiteStore) Get(ctx context.Context, identifier string) (*goIdentity.CredentialRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, goIdentity.ErrNotFound
	}
	query := selectColumns + ` WHERE username = ?`
	if strings.Contains(identifier, "@") {
		query = selectColumns + ` WHERE email = ?`
	}
	return s.scanOne(s.db.QueryRowContext(ctx, query, identifier))
}

// GetByID loads the record for identityID.
func (s *SQLiteStore) GetByID(ctx context.Context, identityID string) (*goIdentity.CredentialRecord, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+` WHERE identity_id = ?`, identityID))
}

// Put inserts or replaces the record keyed by IdentityID. A collision on
// another identity's email or username yields goIdentity.ErrAccountExists.
// The credential is either absent with zero iterations or a decodable
// hash/salt pair; anything else is rejected before it reaches the table.
func (s *SQLiteStore) Put(ctx context.Context, record goIdentity.CredentialRecord) error {
	if record.IdentityID == "" || record.Email == "" {
		return goIdentity.ErrInvalidInput
	}
	if err := checkCredential(&record); err != nil {
		return err
	}

	username := sql.NullString{String: record.Username, Valid: record.Username != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (identity_id, email, username, credential, iterations, is_verified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET
			email = excluded.email,
			username = excluded.username,
			credential = excluded.credential,
			iterations = excluded.iterations,
			is_verified = excluded.is_verified,
			updated_at = excluded.updated_at
	`, record.IdentityID, record.Email, username, record.Credential, record.Iterations, record.IsVerified, s.now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return goIdentity.ErrAccountExists
		}
		return fmt.Errorf("failed to put credential[%s]: %w", record.IdentityID, err)
	}
	return nil
}

// Delete removes the record. Missing rows yield goIdentity.ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, identityID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity_id = ?`, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete credential[%s]: %w", identityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete credential[%s]: %w", identityID, err)
	}
	if n == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

func checkCredential(record *goIdentity.CredentialRecord) error {
	if record.Credential == "" {
		if record.Iterations != 0 {
			return fmt.Errorf("%w: iterations without credential", goIdentity.ErrInvalidInput)
		}
		return nil
	}
	_, err := record.Hashed()
	return err
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*goIdentity.CredentialRecord, error) {
	var (
		rec      goIdentity.CredentialRecord
		username sql.NullString
	)
	err := row.Scan(&rec.IdentityID, &rec.Email, &username, &rec.Credential, &rec.Iterations, &rec.IsVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goIdentity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential row: %w", err)
	}
	rec.Username = username.String
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
