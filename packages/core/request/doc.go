// Package request defines request descriptors and the ordered collection a
// sequencer executes.
package request
