package opmon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	for i := 0; i < 3; i++ {
		op := StartOperation("test.op")
		op.Finish(time.Hour)
	}
	info := Snapshot()["test.op"]
	assert.Equal(t, uint64(3), info.Count)
	assert.T(t, info.MaxDuration <= info.TotalDuration, "max must not exceed total")

	var out bytes.Buffer
	Dump(&out)
	assert.T(t, strings.Contains(out.String(), "test.op"), "dump should list the operation")
	_, ok := Snapshot()["test.op"]
	assert.T(t, !ok, "dump clears infos")
}
