// Package audit delivers security events to pluggable sinks.
//
// The engine decides which events to emit; this package only buffers and
// delivers them. A [Dispatcher] runs inline by default so every completed
// transition is recorded before the caller sees its result. With
// Config.Async it relays through a bounded channel instead, counting
// dropped events when DropIfFull is set.
package audit
