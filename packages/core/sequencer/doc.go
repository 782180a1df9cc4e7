// Package sequencer executes request collections whose later requests depend
// on values extracted from earlier responses.
//
// Each descriptor moves through pending, rendering, sent, extracting and
// applied, or ends in failed with a reason. Descriptors run strictly in
// declared order; declared order is the only dependency mechanism. A failed
// descriptor is recorded and the run continues, so independent requests still
// report their own outcome while dependent ones fail at render time.
//
// Every run owns a fresh registry, which lets RunParallel execute independent
// sequences concurrently without sharing state.
package sequencer
