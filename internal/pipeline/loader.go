package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/costledger/internal/source"
)

// LoadResult holds checkpoint blobs read from a directory, in capture order.
type LoadResult struct {
	Events     []source.Event
	TotalFiles int
	ReadErrors int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// LoadCheckpoints discovers and reads every checkpoint file under dir with
// a bounded worker pool. Events come back in file modification order so
// they can be ingested sequentially.
func LoadCheckpoints(dir string, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	result := &LoadResult{TotalFiles: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	type readResult struct {
		ev  source.Event
		err error
	}

	work := make(chan int, len(files))
	results := make([]readResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				ev, err := source.ReadCheckpoint(files[idx].Path)
				ev.Origin = source.OriginScan
				results[idx] = readResult{ev: ev, err: err}
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n), len(files))
				}
			}
		}()
	}

	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			result.ReadErrors++
			continue
		}
		result.Events = append(result.Events, r.ev)
	}

	return result, nil
}
