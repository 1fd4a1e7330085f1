// Package cmd implements the command-line interface of dVer. It provides a
// hierarchical command structure for running the server and talking to it.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dVer server
//   - doc: Versioned record operations (create, get, update, delete, history) and a perf tool
//   - store: Raw document store operations that bypass versioning
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dver -help for a list of all commands.
package cmd
