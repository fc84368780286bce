// Package metrics provides the Prometheus collectors of threshcorder.
package metrics

// Recorder is the minimal metrics surface used by episode sinks, so they can
// be tested without a registry.
type Recorder interface {
	// RecordOperation records one operation and its outcome
	// (StatusSuccess or StatusError).
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records a failed operation by error category.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}
