// Package cycle wires one collector invocation together: run the measurement,
// tag it with a run id, log its comfort score, append it to the store, prune
// expired samples and export run metrics.
//
// The measurement itself cannot fail from the cycle's point of view; only
// store errors abort the cycle and make the process exit non-zero.
package cycle
