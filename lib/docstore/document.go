package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Reserved field names used by every backend.
const (
	IDField      = "_id"
	VersionField = "_version"
)

// Document is a schema-less record. Values are restricted to what survives a
// JSON round trip: nil, bool, int64, float64, string, []any and map[string]any.
type Document map[string]any

// ID returns the "_id" field of the document, or nil.
func (d Document) ID() any {
	if d == nil {
		return nil
	}
	return d[IDField]
}

// Version returns the "_version" field of the document and whether it is present and integral.
func (d Document) Version() (int64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d[VersionField]
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// CompositeKey returns the storage key of the composite id (id, version).
// The version is zero padded so keys of the same id sort by version.
// Negative versions are not expected here (tombstones carry their marker in
// the "_version" field, not in the key).
func CompositeKey(id string, version int64) string {
	return fmt.Sprintf("%s#%020d", id, version)
}

// HistoryPrefix returns the key prefix shared by all composite keys of id.
func HistoryPrefix(id string) string {
	return id + "#"
}

// KeyOf derives the storage key of a document from its "_id" field.
// A string id is used as is. A composite id of the form
// {"originalId": <string>, "version": <int>} is mapped with CompositeKey.
func KeyOf(doc Document) (string, error) {
	raw, ok := doc[IDField]
	if !ok || raw == nil {
		return "", NewError(RetCInvalidOperation, "document has no _id")
	}
	switch id := raw.(type) {
	case string:
		if id == "" {
			return "", NewError(RetCInvalidOperation, "document has an empty _id")
		}
		if strings.Contains(id, "#") {
			return "", Errorf(RetCInvalidOperation, "_id %q must not contain '#'", id)
		}
		return id, nil
	case map[string]any:
		return compositeKeyOf(id)
	case Document:
		return compositeKeyOf(id)
	default:
		return "", Errorf(RetCInvalidOperation, "unsupported _id type %T", raw)
	}
}

func compositeKeyOf(id map[string]any) (string, error) {
	orig, ok := id["originalId"].(string)
	if !ok || orig == "" {
		return "", NewError(RetCInvalidOperation, "composite _id has no originalId")
	}
	v, ok := AsInt64(id["version"])
	if !ok || v < 0 {
		return "", NewError(RetCInvalidOperation, "composite _id has no valid version")
	}
	return CompositeKey(orig, v), nil
}

// --------------------------------------------------------------------------
// Value Helpers
// --------------------------------------------------------------------------

// AsInt64 converts a numeric document value into an int64.
// Floats are accepted only if they are integral.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// AsTime converts a document value into a time.Time.
// Timestamps are stored as RFC 3339 strings with nanoseconds.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// FormatTime renders t the way AsTime expects it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode serializes a document as JSON.
func Encode(doc Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, Errorf(RetCInvalidOperation, "encode document: %v", err)
	}
	return b, nil
}

// Decode parses a JSON document. Numbers are normalized to int64 when they are
// integral and to float64 otherwise, so versions keep their exact value.
func Decode(b []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, Errorf(RetCInvalidOperation, "decode document: %v", err)
	}
	if raw == nil {
		return nil, NewError(RetCInvalidOperation, "decode document: null")
	}
	return normalizeMap(raw), nil
}

// Normalize converts the values of doc into the canonical representation
// produced by Decode. It is used by backends that keep documents in memory.
func Normalize(doc Document) (Document, error) {
	b, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

func normalizeMap(m map[string]any) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		return map[string]any(normalizeMap(t))
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}
