package perf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePerfStages(t *testing.T) {
	dp := MakeNewDecodePerf("apple.png")
	dp.StartStage("read")
	time.Sleep(time.Millisecond)
	dp.EndStage("read")
	dp.StartStage("inflate")
	dp.EndDecode()

	require.Len(t, dp.Blocks, 2)
	for _, block := range dp.Blocks {
		assert.False(t, block.End.IsZero(), "block %s was not closed", block.Description)
	}
	assert.GreaterOrEqual(t, int64(dp.StageDuration("read")), int64(time.Millisecond))
	assert.Zero(t, dp.StageDuration("defilter"))
	assert.GreaterOrEqual(t, int64(dp.Duration()), int64(dp.StageDuration("read")))

	var buf bytes.Buffer
	dp.Report(&buf)
	assert.Contains(t, buf.String(), "read      took")
	assert.Contains(t, buf.String(), "total     took")
}

func TestPerfCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	collector := RunPerfCollector(ctx)

	for _, name := range []string{"a.png", "b.png"} {
		dp := MakeNewDecodePerf(name)
		dp.StartStage("inflate")
		dp.EndDecode()
		collector.SubmitRun(dp)
	}

	storage := collector.GetPerfCopy()
	assert.Len(t, storage.AllDecodes, 2)
	assert.Contains(t, storage.StageTotals(), "inflate")

	cancel()
	select {
	case <-collector.Done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
}

func TestPerfCollectorAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	collector := RunPerfCollector(ctx)
	cancel()
	<-collector.Done

	finished := make(chan *PerfStorage)
	go func() {
		dp := MakeNewDecodePerf("late.png")
		dp.EndDecode()
		collector.SubmitRun(dp)
		finished <- collector.GetPerfCopy()
	}()

	select {
	case storage := <-finished:
		require.NotNil(t, storage)
		assert.Empty(t, storage.AllDecodes)
	case <-time.After(time.Second):
		t.Fatal("submitting to a stopped collector blocked")
	}
}
