//go:build windows

package process

import (
	"syscall"
)

// windows processes cannot receive signals, so every signal terminates
func (p process) Signal(sig syscall.Signal) error {
	return p.Process.Kill()
}
