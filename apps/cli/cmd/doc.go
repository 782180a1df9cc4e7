// Package cmd implements the hitseq CLI commands using Cobra.
//
// Available commands:
//   - run: Execute a grammar's request sequence against an API
//   - validate: Check a grammar against the schema and lint its ordering
//   - list: Show each request with the variables it reads and writes
//   - render: Print the wire bytes of requests without sending them
//   - history: Inspect runs stored with --history
//   - init: Create an example grammar, dictionary and config
//   - schema: Print the grammar JSON schema
//   - version: Show hitseq version information
package cmd
