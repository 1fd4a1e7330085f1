package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/docstore/sqlstore/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type sqlStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the embedded migrations.
func Open(path string) (docstore.IDocStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, err
	}

	dsn := cleanPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection serializes all statements of this process
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &sqlStore{db: db}, nil
}

// NewFactory returns a docstore.StoreFactory opening the database at path.
func NewFactory(path string) docstore.StoreFactory {
	return func() (docstore.IDocStore, error) {
		return Open(path)
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT ||
		code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var de *docstore.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return docstore.ErrClosed
	}
	return docstore.NewError(docstore.RetCInternalError, err.Error())
}

// versionArg returns the value of the version column for doc.
func versionArg(doc docstore.Document) any {
	if v, ok := doc.Version(); ok {
		return v
	}
	return nil
}

// guarded runs a conditional statement in a transaction. If it affects no row the
// transaction tells a missing document apart from a version mismatch.
func (s *sqlStore) guarded(ctx context.Context, collection, key string, conditional bool, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.RetCInternalError, err.Error())
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		var found int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM documents WHERE collection = ? AND key = ?", collection, key).Scan(&found)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return docstore.Errorf(docstore.RetCNotFound, "key %q not found in %q", key, collection)
		case err != nil:
			return mapError(err)
		case conditional:
			return docstore.Errorf(docstore.RetCPreconditionFailed, "version of %q in %q does not match", key, collection)
		}
	}
	return mapError(tx.Commit())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.IDocStore)
// --------------------------------------------------------------------------

func (s *sqlStore) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND key = ?", collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.Errorf(docstore.RetCNotFound, "key %q not found in %q", key, collection)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return docstore.Decode(body)
}

func (s *sqlStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	key, err := docstore.KeyOf(doc)
	if err != nil {
		return err
	}
	body, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.RetCInternalError, err.Error())
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, key, version, body) VALUES (?, ?, ?, ?)",
		collection, key, versionArg(doc), body)
	if isConstraintError(err) {
		return docstore.Errorf(docstore.RetCDuplicateKey, "key %q already exists in %q", key, collection)
	}
	return mapError(err)
}

func (s *sqlStore) Replace(ctx context.Context, collection, key string, doc docstore.Document) error {
	body, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.guarded(ctx, collection, key, false,
		"UPDATE documents SET version = ?, body = ? WHERE collection = ? AND key = ?",
		versionArg(doc), body, collection, key)
}

func (s *sqlStore) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	body, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.guarded(ctx, collection, key, true,
		"UPDATE documents SET version = ?, body = ? WHERE collection = ? AND key = ? AND version = ?",
		versionArg(doc), body, collection, key, expected)
}

func (s *sqlStore) Remove(ctx context.Context, collection, key string) error {
	return s.guarded(ctx, collection, key, false,
		"DELETE FROM documents WHERE collection = ? AND key = ?", collection, key)
}

func (s *sqlStore) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	return s.guarded(ctx, collection, key, true,
		"DELETE FROM documents WHERE collection = ? AND key = ? AND version = ?", collection, key, expected)
}

func (s *sqlStore) Scan(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	// keys compare with the BINARY collation, i.e. bytewise like every other backend
	rows, err := s.db.QueryContext(ctx, `
SELECT body FROM documents
WHERE collection = ? AND substr(key, 1, length(?)) = ?
ORDER BY key`, collection, prefix, prefix)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, mapError(err)
		}
		doc, err := docstore.Decode(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return docs, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
