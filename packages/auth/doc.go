// Package auth supplies credentials for auth token fragments.
//
// Tokens maps a grammar's auth tags to sources: a static value, an OAuth2
// client (client credentials or password grant) or a refresh command. Sources
// own their caching and refresh; callers ask for the current token every time.
package auth
