//go:build windows

package binutil

import "github.com/lattice-mc/netsync/engine/nslog"

type nopRelease int

func (_ nopRelease) Release() error {
	return nil
}

func Daemonize() nopRelease {
	// Windows can not daemonize
	nslog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
