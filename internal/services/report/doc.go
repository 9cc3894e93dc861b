// Package report periodically snapshots the scheduler and fans the numbers
// out: a structured log line, a row in the SQLite archive, and an update of
// the Prometheus collectors. It also drains overrun events off the bus into
// the archive so they survive the run.
//
// The trigger is a cron entry (an interval config value becomes an "@every"
// schedule), so reporting cadence is decoupled from the tick period entirely;
// the reporter never touches the dispatch path.
package report
