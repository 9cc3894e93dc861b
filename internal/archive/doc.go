// Package archive persists scheduler statistics to SQLite for post-hoc
// inspection: periodic report rows, per-task execution-time samples, and
// overrun events. It is the durable counterpart of the in-memory debug
// rings: bounded history lives in RAM, the archive keeps the long tail
// queryable after the run.
package archive
