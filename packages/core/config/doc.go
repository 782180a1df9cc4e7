// Package config loads hitseq settings.
//
// Settings come from, in increasing precedence:
//   - DefaultConfig
//   - hitseq.yaml / .hitseq.yaml (or the file passed with --config)
//   - HITSEQ_* environment variables, nested keys joined with "_"
//     (HITSEQ_AUTH_TOKEN sets auth.token)
//   - command-line flags, applied by the CLI
//
// Durations are written as Go duration strings ("30s", "5m"). Viper lowercases
// map keys, so header names in the file are case-insensitive. Variable names
// keep their case.
package config
