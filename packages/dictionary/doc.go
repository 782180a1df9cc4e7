// Package dictionary loads the value dictionary used when rendering custom
// payload and fuzzable fragments.
package dictionary
