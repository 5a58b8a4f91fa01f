package analysis

import "github.com/pkg/errors"

// The failure taxonomy shared by every public operation in this package and
// by package shapefit. Callers test with errors.Is; wrapped returns keep the
// sentinel in the chain.
var (
	// ErrInvalidInput flags a nil or empty cloud, a missing or misaligned
	// output field, paired clouds of different sizes, or an out of range
	// parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotEnoughPoints flags a cloud below the structural minimum of the
	// requested algorithm.
	ErrNotEnoughPoints = errors.New("not enough points")

	// ErrOctreeComputation flags a failure while building the spatial index,
	// as opposed to failures in the pass that runs over it.
	ErrOctreeComputation = errors.New("octree computation failed")

	// ErrProcessFailed flags a computational step that failed midway:
	// degenerate geometry, a singular system, a failed cell.
	ErrProcessFailed = errors.New("process failed")

	// ErrUnhandledCharacteristic flags an unknown characteristic kind or a
	// sub-option that is not valid for the kind.
	ErrUnhandledCharacteristic = errors.New("unhandled characteristic")

	// ErrNotEnoughMemory flags an allocation failure in an intermediate
	// buffer. Go surfaces allocation failure by aborting the process, so
	// current routines never return it; it is declared to keep the taxonomy
	// stable for callers.
	ErrNotEnoughMemory = errors.New("not enough memory")

	// ErrCancelled reports that cooperative cancellation was honored mid
	// run. Results of the interrupted call are discarded or left at the
	// invalid sentinel.
	ErrCancelled = errors.New("process cancelled")
)
