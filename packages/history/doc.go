// Package history stores finished sequence runs in a SQLite database so
// earlier runs can be listed and inspected after the process exits.
package history
