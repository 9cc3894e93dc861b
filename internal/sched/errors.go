package sched

import "fmt"

// ConfigError marks a setup-time fault: bad period, full registry,
// registration after start. Fatal: the scheduler must not start on one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sched: invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErrf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
