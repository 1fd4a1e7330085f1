package docstore

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// StoreFactory is a function type that creates a new document store.
// This is used to abstract the creation of the backend from its consumers.
type StoreFactory func() (IDocStore, error)

// IDocStore is the generic interface for interacting with a document store.
// Documents are grouped in collections and addressed by the key derived from
// their "_id" field (see KeyOf). All operations return a *Error on failure.
type IDocStore interface {
	// Get returns the document stored under key.
	// A missing document is reported with RetCNotFound.
	Get(ctx context.Context, collection, key string) (doc Document, err error)
	// Insert stores a new document. The key is derived from the "_id" field of the document.
	// If a document with the same key already exists, RetCDuplicateKey is returned and nothing is written.
	Insert(ctx context.Context, collection string, doc Document) (err error)
	// Replace overwrites the document stored under key.
	// A missing document is reported with RetCNotFound.
	Replace(ctx context.Context, collection, key string, doc Document) (err error)
	// ReplaceIfVersion overwrites the document stored under key only if its
	// "_version" field currently equals expected. The check and the write are atomic.
	// A missing document is reported with RetCNotFound, a version mismatch with RetCPreconditionFailed.
	ReplaceIfVersion(ctx context.Context, collection, key string, expected int64, doc Document) (err error)
	// Remove deletes the document stored under key.
	// A missing document is reported with RetCNotFound.
	Remove(ctx context.Context, collection, key string) (err error)
	// RemoveIfVersion deletes the document stored under key only if its
	// "_version" field currently equals expected. The check and the delete are atomic.
	RemoveIfVersion(ctx context.Context, collection, key string, expected int64) (err error)
	// Scan returns all documents of a collection whose key starts with prefix, ordered by key.
	// An empty prefix returns the whole collection.
	Scan(ctx context.Context, collection, prefix string) (docs []Document, err error)
	// Close releases the resources held by the store.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("DocStoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code.
// This allows errors.Is(err, docstore.ErrNotFound) style checks.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new DocStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new DocStoreError with the given code and a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Sentinel values for errors.Is checks. Only the code is compared.
var (
	ErrNotFound           = NewError(RetCNotFound, "document not found")
	ErrDuplicateKey       = NewError(RetCDuplicateKey, "duplicate key")
	ErrPreconditionFailed = NewError(RetCPreconditionFailed, "version precondition failed")
	ErrClosed             = NewError(RetCInvalidOperation, "store is closed")
)

// CodeOf returns the RetCode carried by err.
// Errors that are not a *Error are reported as RetCInternalError, nil as RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// IsNotFound reports whether err signals a missing document.
func IsNotFound(err error) bool { return err != nil && CodeOf(err) == RetCNotFound }

// IsDuplicateKey reports whether err signals an insert on an existing key.
func IsDuplicateKey(err error) bool { return err != nil && CodeOf(err) == RetCDuplicateKey }

// IsPreconditionFailed reports whether err signals a failed version guard.
func IsPreconditionFailed(err error) bool {
	return err != nil && CodeOf(err) == RetCPreconditionFailed
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The addressed document does not exist.
	RetCDuplicateKey                        // 5: A document with the same key already exists.
	RetCPreconditionFailed                  // 6: The stored version did not match the expected version.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCDuplicateKey:
		return "DuplicateKey"
	case RetCPreconditionFailed:
		return "PreconditionFailed"
	default:
		return "Unknown"
	}
}
