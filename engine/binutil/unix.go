//go:build !windows

package binutil

import (
	"os"

	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/sevlyar/go-daemon"
)

// Daemonize re-runs the process in the background. The parent exits; the child gets
// the context to release on exit.
func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()

	if err != nil {
		nslog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		nslog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	}
	return context
}
