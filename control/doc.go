// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for wsgate.
//
// Provides concurrent-safe primitives:
//   - Counters and gauges with snapshot export
//   - Named debug probes evaluated on demand
package control
