package memstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for the snapshot file format
const (
	magicNum        = "DVERMEM\x00" // File format identifier
	snapshotVersion = 1             // Snapshot format version
)

// --------------------------------------------------------------------------
// Core Structures
// --------------------------------------------------------------------------

// entry is the stored form of a document. The version is cached next to the
// encoded document so guarded writes don't need to decode it.
type entry struct {
	version    int64
	hasVersion bool
	data       []byte
}

// memStore implements docstore.IDocStore on top of nested concurrent maps.
type memStore struct {
	collections *xsync.MapOf[string, *xsync.MapOf[string, entry]]
	closed      atomic.Bool
}

// Store is the in-memory store. Next to docstore.IDocStore it supports
// saving and restoring snapshots, which is used by the raft state machine.
type Store interface {
	docstore.IDocStore
	// Save writes a consistent-enough snapshot of all collections to w.
	// Concurrent writes are allowed, each document is either in the old or the new state.
	Save(w io.Writer) error
	// Load replaces the content of the store with the snapshot read from r.
	// Load is not safe for concurrent use with other operations.
	Load(r io.Reader) error
}

// NewStore creates a new, empty in-memory store.
func NewStore() Store {
	return &memStore{
		collections: xsync.NewMapOf[string, *xsync.MapOf[string, entry]](),
	}
}

// NewFactory returns a docstore.StoreFactory creating in-memory stores.
func NewFactory() docstore.StoreFactory {
	return func() (docstore.IDocStore, error) {
		return NewStore(), nil
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func (s *memStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return docstore.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.RetCInternalError, err.Error())
	}
	return nil
}

// collection returns the map of a collection, creating it if needed.
func (s *memStore) collection(name string) *xsync.MapOf[string, entry] {
	c, _ := s.collections.LoadOrCompute(name, func() *xsync.MapOf[string, entry] {
		return xsync.NewMapOf[string, entry]()
	})
	return c
}

func newEntry(doc docstore.Document) (entry, error) {
	data, err := docstore.Encode(doc)
	if err != nil {
		return entry{}, err
	}
	v, ok := doc.Version()
	return entry{version: v, hasVersion: ok, data: data}, nil
}

func (e entry) matches(expected int64) bool {
	return e.hasVersion && e.version == expected
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.IDocStore)
// --------------------------------------------------------------------------

func (s *memStore) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.collections.Load(collection)
	if !ok {
		return nil, docstore.ErrNotFound
	}
	e, ok := c.Load(key)
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return docstore.Decode(e.data)
}

func (s *memStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	key, err := docstore.KeyOf(doc)
	if err != nil {
		return err
	}
	e, err := newEntry(doc)
	if err != nil {
		return err
	}

	var exists bool
	s.collection(collection).Compute(key, func(old entry, loaded bool) (entry, bool) {
		if loaded {
			exists = true
			return old, false
		}
		return e, false
	})
	if exists {
		return docstore.Errorf(docstore.RetCDuplicateKey, "key %q already exists in %q", key, collection)
	}
	return nil
}

func (s *memStore) Replace(ctx context.Context, collection, key string, doc docstore.Document) error {
	return s.replace(ctx, collection, key, doc, func(entry) bool { return true })
}

func (s *memStore) ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc docstore.Document) error {
	return s.replace(ctx, collection, key, doc, func(old entry) bool { return old.matches(expected) })
}

// replace is the shared implementation of Replace and ReplaceIfVersion.
// The guard is evaluated inside the atomic compute of the key.
func (s *memStore) replace(ctx context.Context, collection, key string, doc docstore.Document, guard func(old entry) bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	e, err := newEntry(doc)
	if err != nil {
		return err
	}

	code := docstore.RetCSuccess
	s.collection(collection).Compute(key, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			code = docstore.RetCNotFound
			return old, true // delete = true, otherwise an empty entry is created
		}
		if !guard(old) {
			code = docstore.RetCPreconditionFailed
			return old, false
		}
		return e, false
	})
	return resultError(code, collection, key)
}

func (s *memStore) Remove(ctx context.Context, collection, key string) error {
	return s.remove(ctx, collection, key, func(entry) bool { return true })
}

func (s *memStore) RemoveIfVersion(ctx context.Context, collection, key string, expected int64) error {
	return s.remove(ctx, collection, key, func(old entry) bool { return old.matches(expected) })
}

func (s *memStore) remove(ctx context.Context, collection, key string, guard func(old entry) bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	c, ok := s.collections.Load(collection)
	if !ok {
		return resultError(docstore.RetCNotFound, collection, key)
	}

	code := docstore.RetCSuccess
	c.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			code = docstore.RetCNotFound
			return old, true
		}
		if !guard(old) {
			code = docstore.RetCPreconditionFailed
			return old, false
		}
		return old, true
	})
	return resultError(code, collection, key)
}

func (s *memStore) Scan(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.collections.Load(collection)
	if !ok {
		return []docstore.Document{}, nil
	}

	type kv struct {
		key  string
		data []byte
	}
	var matches []kv
	c.Range(func(key string, e entry) bool {
		if strings.HasPrefix(key, prefix) {
			matches = append(matches, kv{key, e.data})
		}
		return true
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].key < matches[j].key })

	docs := make([]docstore.Document, 0, len(matches))
	for _, m := range matches {
		doc, err := docstore.Decode(m.data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *memStore) Close() error {
	s.closed.Store(true)
	return nil
}

func resultError(code docstore.RetCode, collection, key string) error {
	switch code {
	case docstore.RetCSuccess:
		return nil
	case docstore.RetCNotFound:
		return docstore.Errorf(code, "key %q not found in %q", key, collection)
	case docstore.RetCPreconditionFailed:
		return docstore.Errorf(code, "version of %q in %q does not match", key, collection)
	default:
		return docstore.Errorf(code, "operation on %q in %q failed", key, collection)
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists all collections to the writer.
//
// Format: magic, version (uint8), collection count (uint64) and per collection
// its name, entry count and the entries as length prefixed key and document.
func (s *memStore) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key  string
		data []byte
	}
	type collectionToSave struct {
		name    string
		entries []entryToSave
	}

	// collect the snapshot before writing anything
	var cols []collectionToSave
	s.collections.Range(func(name string, c *xsync.MapOf[string, entry]) bool {
		col := collectionToSave{name: name}
		c.Range(func(key string, e entry) bool {
			col.entries = append(col.entries, entryToSave{key, e.data})
			return true
		})
		cols = append(cols, col)
		return true
	})

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(cols))); err != nil {
		return err
	}
	for _, col := range cols {
		if err := writeBytes(bw, []byte(col.name)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(col.entries))); err != nil {
			return err
		}
		for _, e := range col.entries {
			if err := writeBytes(bw, []byte(e.key)); err != nil {
				return err
			}
			if err := writeBytes(bw, e.data); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load restores all collections from the reader. Existing content is dropped.
func (s *memStore) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var colCount uint64
	if err := binary.Read(br, binary.LittleEndian, &colCount); err != nil {
		return err
	}

	collections := xsync.NewMapOf[string, *xsync.MapOf[string, entry]]()
	for i := uint64(0); i < colCount; i++ {
		name, err := readBytes(br)
		if err != nil {
			return err
		}
		var entryCount uint64
		if err := binary.Read(br, binary.LittleEndian, &entryCount); err != nil {
			return err
		}

		c := xsync.NewMapOf[string, entry]()
		for j := uint64(0); j < entryCount; j++ {
			key, err := readBytes(br)
			if err != nil {
				return err
			}
			data, err := readBytes(br)
			if err != nil {
				return err
			}
			doc, err := docstore.Decode(data)
			if err != nil {
				return err
			}
			v, ok := doc.Version()
			c.Store(string(key), entry{version: v, hasVersion: ok, data: data})
		}
		collections.Store(string(name), c)
	}

	s.collections = collections
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
