package annotate

import (
	"runtime"
	"sync"

	"github.com/driverdx/dnds/internal/mutation"
)

// workItem holds a deduplicated mutation awaiting annotation.
type workItem struct {
	Seq int
	Mut mutation.Mutation
}

// workResult holds the annotation outcome for a single mutation.
type workResult struct {
	Seq int
	Ann mutation.Annotated
	OK  bool // false when the position is unannotated
}

// parallelLookup annotates work items using a pool of workers. Results are
// sent in arrival order; use orderedCollect to consume them in sequence
// order so runs are deterministic. If workers is 0, runtime.NumCPU() is used.
func (a *Annotator) parallelLookup(items <-chan workItem, workers int) <-chan workResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan workResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				ann, ok := a.lookupOne(item.Mut)
				results <- workResult{Seq: item.Seq, Ann: ann, OK: ok}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// orderedCollect calls fn for each result in sequence-number order,
// buffering out-of-order results until the next expected sequence number
// arrives. Blocks until the results channel is closed.
func orderedCollect(results <-chan workResult, fn func(workResult)) {
	pending := make(map[int]workResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			fn(rr)
		}
	}
}
