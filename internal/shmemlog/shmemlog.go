// Package shmemlog defines the minimal structured-logger interface the
// administration subsystem is driven by. Logging itself remains an external
// collaborator; this interface only decouples the subsystem from any one
// concrete logging library.
package shmemlog

// Logger is satisfied by any structured logger capable of formatted
// info/warning/error output. cmd/shmem-admin wires a concrete
// implementation built on the standard library's log.Logger.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop is a Logger that discards everything, used by package tests that
// don't care about log output.
type Nop struct{}

func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
