package octree

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/pointcloud-analysis/utils"
)

// CellFunc does the work of one octree cell. Implementations may read the
// cloud and the octree freely but must write only to state owned by the
// given cell's indices.
type CellFunc func(ctx context.Context, cell Cell) error

// RunOverCells invokes fn at most once per cell. With parallel set, cells are
// fed to a fixed pool of workers sized by utils.ParallelFactor; otherwise
// they run in the given order on the calling goroutine. The first cell error
// or a context cancellation stops new cells from starting; cells already
// running finish first. progress, when not nil, is called after each
// completed cell with the fraction of cells done, one call at a time.
func RunOverCells(ctx context.Context, cells []Cell, fn CellFunc, parallel bool, progress func(fractionDone float64)) error {
	if fn == nil {
		return errors.New("no cell function given")
	}
	total := len(cells)
	if total == 0 {
		return ctx.Err()
	}

	if !parallel {
		for i, cell := range cells {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, cell); err != nil {
				return err
			}
			if progress != nil {
				progress(float64(i+1) / float64(total))
			}
		}
		return nil
	}

	workers := utils.ParallelFactor
	if workers > total {
		workers = total
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		allErrs error
		done    int
	)
	storeErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if allErrs == nil || !errors.Is(err, context.Canceled) {
			allErrs = multierr.Combine(allErrs, err)
		}
	}
	cellDone := func() {
		if progress == nil {
			return
		}
		mu.Lock()
		done++
		progress(float64(done) / float64(total))
		mu.Unlock()
	}

	runOne := func(cell Cell) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				storeErr(errors.Errorf("got panic running an octree cell: %v", thePanic))
				cancel()
			}
		}()
		if err := fn(runCtx, cell); err != nil {
			storeErr(err)
			cancel()
			return
		}
		cellDone()
	}

	cellChan := make(chan Cell)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			for cell := range cellChan {
				if runCtx.Err() != nil {
					continue
				}
				runOne(cell)
			}
		})
	}

feed:
	for _, cell := range cells {
		select {
		case cellChan <- cell:
		case <-runCtx.Done():
			break feed
		}
	}
	close(cellChan)
	wg.Wait()

	if allErrs != nil {
		return allErrs
	}
	return ctx.Err()
}
