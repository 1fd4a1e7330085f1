// Package internal contains the raft log commands and the read queries of the
// dstore state machine.
//
// Commands are replicated and therefore serialized with a compact binary format
// (see Command.Serialize). Queries are executed on the local replica only and are
// passed to the state machine as plain structs.
package internal
