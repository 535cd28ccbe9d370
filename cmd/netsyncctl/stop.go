package main

import (
	"syscall"
	"time"

	"github.com/lattice-mc/netsync/cmd/netsyncctl/process"
)

const stopWaitTimeout = 30 * time.Second

func stop() {
	stopWithSignal(syscall.SIGTERM)
}

func kill() {
	stopWithSignal(syscall.SIGKILL)
}

func stopWithSignal(signal syscall.Signal) {
	procs := detectLocalDaemons()
	if len(procs) == 0 {
		showMsgAndQuit("no %s is running currently", daemonName)
	}

	showMsg("stop %d %s ...", len(procs), daemonName)
	for _, proc := range procs {
		stopProc(proc, signal)
	}
}

func stopProc(proc process.Process, signal syscall.Signal) {
	showMsg("stop process %s pid=%d", proc.Executable(), proc.Pid())
	checkErrorOrQuit(proc.Signal(signal), "stop process failed")

	deadline := time.Now().Add(stopWaitTimeout)
	for proc.IsRunning() {
		if time.Now().After(deadline) {
			showMsgAndQuit("process %d still running after %s", proc.Pid(), stopWaitTimeout)
		}
		time.Sleep(time.Millisecond * 100)
	}
}
