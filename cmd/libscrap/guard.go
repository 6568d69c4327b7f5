package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// errPanic marks a Go panic caught at the C boundary. Unwinding through C
// frames would abort the host process, so every export recovers.
var errPanic = errors.New("libscrap: internal panic")

// recoverInto must be deferred directly. When the export panicked it logs the
// value and, if fail is set, reports it through the export's error channel.
func recoverInto(op string, fail func(error)) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("libscrap: panic recovered", "op", op, "panic", r, "stack", string(debug.Stack()))
	if fail != nil {
		fail(fmt.Errorf("%w in %s: %v", errPanic, op, r))
	}
}
