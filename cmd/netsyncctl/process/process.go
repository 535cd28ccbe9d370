package process

import (
	"path/filepath"
	"strings"
	"syscall"

	psutil_process "github.com/shirou/gopsutil/process"
)

// Process is a running process seen by netsyncctl
type Process interface {
	Pid() int32
	Executable() string
	Path() (string, error)
	CmdlineSlice() ([]string, error)
	Signal(sig syscall.Signal) error
	IsRunning() bool
}

type process struct {
	*psutil_process.Process
}

func (p process) Pid() int32 {
	return p.Process.Pid
}

func (p process) Executable() string {
	name, _ := p.Process.Name()
	return name
}

func (p process) Path() (string, error) {
	return p.Process.Exe()
}

func (p process) IsRunning() bool {
	running, err := p.Process.IsRunning()
	return err == nil && running
}

// Processes lists every process of the host
func Processes() ([]Process, error) {
	ps, err := psutil_process.Processes()
	if err != nil {
		return nil, err
	}

	procs := make([]Process, 0, len(ps))
	for _, p := range ps {
		procs = append(procs, process{p})
	}
	return procs, nil
}

// FindByName lists processes whose executable base name is name. Processes that went away
// while listing are skipped.
func FindByName(name string) ([]Process, error) {
	procs, err := Processes()
	if err != nil {
		return nil, err
	}

	var found []Process
	for _, proc := range procs {
		if matchName(proc, name) {
			found = append(found, proc)
		}
	}
	return found, nil
}

func matchName(proc Process, name string) bool {
	if exe := proc.Executable(); exe != "" {
		return strings.TrimSuffix(exe, ".exe") == name
	}
	path, err := proc.Path()
	if err != nil {
		return false
	}
	return strings.TrimSuffix(filepath.Base(path), ".exe") == name
}
