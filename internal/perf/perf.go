package perf

import (
	"context"
	"fmt"
	"io"
	"time"
)

// DecodePerf times the stages of one decode. It satisfies pngraw.Observer.
type DecodePerf struct {
	Source string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock
}

func MakeNewDecodePerf(source string) *DecodePerf {
	return &DecodePerf{
		Start:  time.Now(),
		Source: source,
	}
}

func (dp *DecodePerf) EndDecode() {
	for dp.EndBlock() {
	}
	dp.End = time.Now()
}

func (dp *DecodePerf) StartBlock(category, description string) {
	now := time.Now()
	checkpoint := PerfBlock{
		Start:       now,
		End:         time.Time{},
		Category:    category,
		Description: description,
	}
	dp.Blocks = append(dp.Blocks, checkpoint)
}

func (dp *DecodePerf) EndBlock() bool {
	for i := len(dp.Blocks) - 1; i >= 0; i -= 1 {
		if dp.Blocks[i].End.Equal(time.Time{}) {
			dp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (dp *DecodePerf) StartStage(name string) {
	dp.StartBlock("STAGE", name)
}

func (dp *DecodePerf) EndStage(name string) {
	dp.EndBlock()
}

func (dp *DecodePerf) Duration() time.Duration {
	return dp.End.Sub(dp.Start)
}

// StageDuration sums the blocks recorded for a stage.
func (dp *DecodePerf) StageDuration(name string) time.Duration {
	var d time.Duration
	for i := range dp.Blocks {
		if dp.Blocks[i].Category == "STAGE" && dp.Blocks[i].Description == name {
			d += dp.Blocks[i].Duration()
		}
	}
	return d
}

func (dp *DecodePerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(dp.Start).Nanoseconds()) / 1000 / 1000
}

// Report prints one line per block: "<stage> took <s>s / <ms>ms".
func (dp *DecodePerf) Report(w io.Writer) {
	for i := range dp.Blocks {
		block := &dp.Blocks[i]
		fmt.Fprintf(w, "%-9s took %fs / %fms (at +%.3fms)\n",
			block.Description, block.Duration().Seconds(), block.DurationMs(), dp.MsFromStart(block))
	}
	fmt.Fprintf(w, "%-9s took %fs / %fms\n", "total", dp.Duration().Seconds(), float64(dp.Duration().Nanoseconds())/1000/1000)
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type PerfStorage struct {
	AllDecodes []DecodePerf
}

// PerfCollector gathers finished DecodePerfs from concurrent decodes.
type PerfCollector struct {
	In          chan<- DecodePerf
	Done        <-chan struct{}
	RequestCopy chan<- (chan<- PerfStorage)
}

func RunPerfCollector(ctx context.Context) *PerfCollector {
	in := make(chan DecodePerf)
	done := make(chan struct{})
	requestCopy := make(chan (chan<- PerfStorage))

	var storage PerfStorage

	go func() {
		defer close(done)

		for {
			select {
			case perf := <-in:
				storage.AllDecodes = append(storage.AllDecodes, perf)
			case resultChan := <-requestCopy:
				resultChan <- storage
			case <-ctx.Done():
				return
			}
		}
	}()

	perfCollector := PerfCollector{
		In:          in,
		Done:        done,
		RequestCopy: requestCopy,
	}
	return &perfCollector
}

// SubmitRun hands run to the collector. It is dropped once the collector
// has stopped.
func (perfCollector *PerfCollector) SubmitRun(run *DecodePerf) {
	select {
	case perfCollector.In <- *run:
	case <-perfCollector.Done:
	}
}

// GetPerfCopy returns the runs collected so far, or an empty storage once
// the collector has stopped.
func (perfCollector *PerfCollector) GetPerfCopy() *PerfStorage {
	resultChan := make(chan PerfStorage)
	select {
	case perfCollector.RequestCopy <- resultChan:
	case <-perfCollector.Done:
		return &PerfStorage{}
	}
	perfStorageCopy := <-resultChan
	return &perfStorageCopy
}

// StageTotals sums each stage across every collected decode.
func (ps *PerfStorage) StageTotals() map[string]time.Duration {
	totals := make(map[string]time.Duration)
	for i := range ps.AllDecodes {
		for j := range ps.AllDecodes[i].Blocks {
			block := &ps.AllDecodes[i].Blocks[j]
			totals[block.Description] += block.Duration()
		}
	}
	return totals
}
