package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
)

func TestProcesses(t *testing.T) {
	ps, err := Processes()
	if err != nil {
		t.Fatalf("list processes error: %s", err)
	}

	var self Process
	for _, p := range ps {
		if p.Pid() == int32(os.Getpid()) {
			self = p
		}
	}
	if self == nil {
		t.Fatalf("own process %d not listed", os.Getpid())
	}
	assert.T(t, self.IsRunning())
}

func TestFindByName(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	name := strings.TrimSuffix(filepath.Base(exe), ".exe")
	found, err := FindByName(name)
	assert.Equal(t, nil, err)

	pids := map[int32]bool{}
	for _, p := range found {
		pids[p.Pid()] = true
	}
	assert.T(t, pids[int32(os.Getpid())])

	none, err := FindByName("netsync-no-such-binary")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(none))
}
