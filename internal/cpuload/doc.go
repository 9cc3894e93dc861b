// Package cpuload estimates processor load from idle-loop iteration counts.
//
// While the dispatcher waits for the next tick it increments an idle counter
// once per spin iteration. One iteration costs a near-constant number of
// instruction cycles, but that constant depends on how the spin loop was
// compiled, so it is an explicit, named configuration value rather than a
// hidden assumption. It can be picked from the measured optimization-level
// table, supplied as a user-measured override, or derived at startup by
// Calibrate.
//
// At each tick boundary the idle count is folded into a percentage:
//
//	load% = 100 − idle × cyclesPerIteration × 100 / cyclesPerPeriod
//
// clamped to [0,100], computed in Q16 fixed point with the scale factor
// precomputed once so the hot path never divides. An uncalibrated meter
// reports LoadUnknown instead of a fabricated number.
package cpuload
