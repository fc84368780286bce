// Package audiocore holds the types shared by the capture-and-trigger pipeline.
//
// # Pipeline
//
//	capture.Driver -> ringbuffer.Ring -> level.Detector -> trigger.Machine
//	    -> handoff queue -> export.Writer -> filesystem
//
// The capture driver runs on its own OS thread and never blocks on anything
// but the device read. The processing goroutine pops frames, runs the level
// detector and the trigger state machine, and hands episode events to the
// writer goroutine through a bounded queue.
//
// # Ownership
//
// A Frame is immutable once produced. Stages exchange copies: the ring
// buffer copies on push and on pop, and the state machine clones frames it
// retains for pre-roll or hands to the writer. No stage holds a reference
// into another stage's storage.
//
// # Errors
//
// The sentinel errors in this package classify pipeline failures and are
// matched with errors.Is. Failures on the real-time path are recorded as
// counters, never returned.
package audiocore
