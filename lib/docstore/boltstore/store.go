package boltstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dVer/lib/docstore"
	bolt "go.etcd.io/bbolt"
)

// errGuard aborts a bolt transaction with a store error, bolt rolls back on any error.
type errGuard struct{ err *docstore.Error }

func (e errGuard) Error() string { return e.err.Error() }

type boltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the bolt database file at path.
func Open(path string) (docstore.IDocStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

// NewFactory returns a docstore.StoreFactory opening the database file at path.
func NewFactory(path string) docstore.StoreFactory {
	return func() (docstore.IDocStore, error) {
		return Open(path)
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// update runs fn in a write transaction on the bucket of the collection.
func (s *boltStore) update(ctx context.Context, collection string, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.RetCInternalError, err.Error())
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return fn(b)
	})
	return mapError(err)
}

// view runs fn in a read transaction. b is nil if the collection does not exist.
func (s *boltStore) view(ctx context.Context, collection string, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.RetCInternalError, err.Error())
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(collection)))
	})
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var g errGuard
	if errors.As(err, &g) {
		return g.err
	}
	var de *docstore.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return docstore.ErrClosed
	}
	return docstore.NewError(docstore.RetCInternalError, err.Error())
}

// versionOf decodes the version of a stored document.
func versionOf(data []byte) (int64, bool, error) {
	doc, err := docstore.Decode(data)
	if err != nil {
		return 0, false, err
	}
	v, ok := doc.Version()
	return v, ok, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.IDocStore)
// --------------------------------------------------------------------------

func (s *boltStore) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	var doc docstore.Document
	err := s.view(ctx, collection, func(b *bolt.Bucket) error {
		if b == nil {
			return errGuard{docstore.ErrNotFound}
		}
		data := b.Get([]byte(key))
		if data == nil {
			return errGuard{docstore.ErrNotFound}
		}
		// data is only valid inside the transaction, decoding copies it
		var err error
		doc, err = docstore.Decode(data)
		return err
	})
	return doc, err
}

func (s *boltStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	key, err := docstore.KeyOf(doc)
	if err != nil {
		return err
	}
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.update(ctx, collection, func(b *bolt.Bucket) error {
		if b.Get([]byte(key)) != nil {
			return errGuard{docstore.Errorf(docstore.RetCDuplicateKey, "key %q already exists in %q", key, collection)}
		}
		return b.Put([]byte(key), data)
	})
}

func (s *boltStore) Replace(ctx context.Context, collection, key string, doc docstore.Document) error {
	return s.replace(ctx, collection, key, doc, nil)
}

func (s *boltStore) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	return s.replace(ctx, collection, key, doc, &expected)
}

func (s *boltStore) replace(ctx context.Context, collection, key string, doc docstore.Document, expected *int64) error {
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	return s.update(ctx, collection, func(b *bolt.Bucket) error {
		if err := checkGuard(b, collection, key, expected); err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *boltStore) Remove(ctx context.Context, collection, key string) error {
	return s.remove(ctx, collection, key, nil)
}

func (s *boltStore) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	return s.remove(ctx, collection, key, &expected)
}

func (s *boltStore) remove(ctx context.Context, collection, key string, expected *int64) error {
	return s.update(ctx, collection, func(b *bolt.Bucket) error {
		if err := checkGuard(b, collection, key, expected); err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// checkGuard verifies that key exists and, if expected is set, carries the expected version.
func checkGuard(b *bolt.Bucket, collection, key string, expected *int64) error {
	current := b.Get([]byte(key))
	if current == nil {
		return errGuard{docstore.Errorf(docstore.RetCNotFound, "key %q not found in %q", key, collection)}
	}
	if expected == nil {
		return nil
	}
	v, ok, err := versionOf(current)
	if err != nil {
		return err
	}
	if !ok || v != *expected {
		return errGuard{docstore.Errorf(docstore.RetCPreconditionFailed, "version of %q in %q does not match", key, collection)}
	}
	return nil
}

func (s *boltStore) Scan(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	docs := []docstore.Document{}
	err := s.view(ctx, collection, func(b *bolt.Bucket) error {
		if b == nil {
			return nil
		}
		// bolt keys are sorted bytewise, so the prefix range is contiguous
		p := []byte(prefix)
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			doc, err := docstore.Decode(v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
