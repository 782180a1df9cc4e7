// Package extract pulls dynamic values out of HTTP responses.
//
// Rules name a field by JSON pointer or gjson path (or a header name) and
// the variable it writes. Missing fields are skipped; partial extraction is
// the normal case. Only a response that yields none of the declared
// variables is reported as NoDynamicObjectsError.
package extract
