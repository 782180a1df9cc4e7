// Package template renders request templates into HTTP/1.1 wire bytes.
//
// A template is an ordered list of fragments: literal text, fuzzable
// placeholders rendered with their seed value, custom payloads, references to
// dynamic variables and auth tokens. Fragments are concatenated exactly in
// order with no separators, so templates carry their own CRLF framing.
package template
