package control_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/wsgate/control"
)

func TestMetricsCounters(t *testing.T) {
	mr := control.NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				mr.Add("frames_out", 1)
			}
		}()
	}
	wg.Wait()
	mr.Set("codec", "json")

	assert.EqualValues(t, 800, mr.Get("frames_out"))
	snap := mr.GetSnapshot()
	assert.EqualValues(t, 800, snap["frames_out"])
	assert.Equal(t, "json", snap["codec"])
	assert.False(t, mr.Updated().IsZero())
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	n := 0
	dp.RegisterProbe("calls", func() any { n++; return n })
	dp.RegisterProbe("name", func() any { return "wsgate" })

	st := dp.DumpState()
	assert.Equal(t, 1, st["calls"])
	assert.Equal(t, "wsgate", st["name"])
	assert.Equal(t, 2, dp.DumpState()["calls"])
}
