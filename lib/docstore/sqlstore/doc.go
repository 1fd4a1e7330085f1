// Package sqlstore implements docstore.IDocStore on top of SQLite, using the
// pure Go driver modernc.org/sqlite.
//
// All collections share the table
//
//	documents(collection, key, version, body)
//
// where body holds the JSON encoded document and version mirrors its "_version"
// field (NULL if absent). Version guarded writes are single statements of the form
// "UPDATE ... WHERE version = ?", so the check is done by SQLite itself. If a
// statement affects no row, a lookup in the same transaction reports whether the
// document is missing or carries another version.
//
// The schema is created by the embedded migrations (see the migrations package);
// applied files are tracked in the schema_migrations table.
package sqlstore
