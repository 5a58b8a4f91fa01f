package octree

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func makeCells(numCells, perCell int) []Cell {
	cells := make([]Cell, 0, numCells)
	idx := 0
	for c := 0; c < numCells; c++ {
		indices := make([]int, 0, perCell)
		for j := 0; j < perCell; j++ {
			indices = append(indices, idx)
			idx++
		}
		cells = append(cells, Cell{Level: 1, Key: CellKey{I: int64(c)}, Indices: indices})
	}
	return cells
}

func TestRunOverCells(t *testing.T) {
	ctx := context.Background()

	t.Run("a nil cell function is refused", func(t *testing.T) {
		err := RunOverCells(ctx, makeCells(2, 1), nil, false, nil)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("no cells is a no-op", func(t *testing.T) {
		fn := func(ctx context.Context, cell Cell) error { return nil }
		test.That(t, RunOverCells(ctx, nil, fn, false, nil), test.ShouldBeNil)
		test.That(t, RunOverCells(ctx, nil, fn, true, nil), test.ShouldBeNil)
	})

	t.Run("every cell runs exactly once in both modes", func(t *testing.T) {
		for _, parallel := range []bool{false, true} {
			cells := makeCells(64, 3)
			// cells own disjoint indices, so these writes need no lock
			visits := make([]int, 64*3)
			fn := func(ctx context.Context, cell Cell) error {
				for _, idx := range cell.Indices {
					visits[idx]++
				}
				return nil
			}
			err := RunOverCells(ctx, cells, fn, parallel, nil)
			test.That(t, err, test.ShouldBeNil)
			for _, v := range visits {
				test.That(t, v, test.ShouldEqual, 1)
			}
		}
	})

	t.Run("parallel and sequential write the same values", func(t *testing.T) {
		cells := makeCells(40, 5)
		run := func(parallel bool) []float64 {
			out := make([]float64, 40*5)
			fn := func(ctx context.Context, cell Cell) error {
				for _, idx := range cell.Indices {
					out[idx] = float64(idx) * 2
				}
				return nil
			}
			test.That(t, RunOverCells(ctx, cells, fn, parallel, nil), test.ShouldBeNil)
			return out
		}
		test.That(t, run(true), test.ShouldResemble, run(false))
	})

	t.Run("sequential progress is the completed fraction in order", func(t *testing.T) {
		var fractions []float64
		fn := func(ctx context.Context, cell Cell) error { return nil }
		err := RunOverCells(ctx, makeCells(4, 1), fn, false, func(f float64) {
			fractions = append(fractions, f)
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, fractions, test.ShouldResemble, []float64{0.25, 0.5, 0.75, 1})
	})

	t.Run("parallel progress is serialized and reaches one", func(t *testing.T) {
		// the callback contract makes appending here safe
		var fractions []float64
		fn := func(ctx context.Context, cell Cell) error { return nil }
		err := RunOverCells(ctx, makeCells(32, 1), fn, true, func(f float64) {
			fractions = append(fractions, f)
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, fractions, test.ShouldHaveLength, 32)
		for i := 1; i < len(fractions); i++ {
			test.That(t, fractions[i], test.ShouldBeGreaterThan, fractions[i-1])
		}
		test.That(t, fractions[len(fractions)-1], test.ShouldEqual, 1.0)
	})

	t.Run("the first cell error aborts the run", func(t *testing.T) {
		boom := errors.New("cell exploded")
		for _, parallel := range []bool{false, true} {
			fn := func(ctx context.Context, cell Cell) error {
				if cell.Key.I == 5 {
					return boom
				}
				return nil
			}
			err := RunOverCells(ctx, makeCells(64, 1), fn, parallel, nil)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
		}
	})

	t.Run("cancellation stops new cells from starting", func(t *testing.T) {
		for _, parallel := range []bool{false, true} {
			cancelCtx, cancel := context.WithCancel(ctx)
			var once sync.Once
			var started int32
			fn := func(ctx context.Context, cell Cell) error {
				atomic.AddInt32(&started, 1)
				once.Do(cancel)
				return nil
			}
			err := RunOverCells(cancelCtx, makeCells(1000, 1), fn, parallel, nil)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
			test.That(t, atomic.LoadInt32(&started), test.ShouldBeLessThan, 1000)
		}
	})

	t.Run("a panicking cell surfaces as an error", func(t *testing.T) {
		fn := func(ctx context.Context, cell Cell) error {
			if cell.Key.I == 3 {
				panic("boom")
			}
			return nil
		}
		err := RunOverCells(ctx, makeCells(16, 1), fn, true, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "panic")
	})
}
