// Package registry stores dynamic variables for one sequence run.
//
// A value is written after a response has been parsed and read when a later
// request is rendered. Reading a variable that was never written yields an
// UnresolvedError, never an empty string.
package registry
