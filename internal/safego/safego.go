// Package safego provides a panic-recovering goroutine launcher for
// background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// rather than crashing the process. Used for all fire-and-forget goroutines
// (the QA worker, the reclaimer, async notifications) where an unrecovered
// panic would silently kill the loop forever.
func Go(fn func()) {
	Named("", fn)
}

// Named is like Go but tags the recovery log with the goroutine's name, which
// makes crash triage possible when several background loops run at once.
func Named(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if name != "" {
					slog.Error("recovered panic in background goroutine", "name", name, "panic", r)
				} else {
					slog.Error("recovered panic in background goroutine", "panic", r)
				}
			}
		}()
		fn()
	}()
}
