package nsutils

import (
	"time"

	"github.com/lattice-mc/netsync/engine/nslog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			nslog.TraceError("%v panic: %v", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilStopped runs f, sleeping interval between attempts, until f returns true
// or stop is closed. Panics inside f count as failed attempts.
func RepeatUntilStopped(stop <-chan struct{}, interval time.Duration, f func() bool) {
	for {
		var done bool
		RunPanicless(func() {
			done = f()
		})
		if done {
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}
