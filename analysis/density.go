package analysis

import (
	"math"

	"github.com/viam-labs/pointcloud-analysis/utils"
)

// densityFromCount converts a kernel sphere population into the requested
// density. The count includes the queried point itself.
func densityFromCount(d DensityType, count int, kernelRadius float64) float64 {
	switch d {
	case Density2D:
		return float64(count) / (math.Pi * utils.Square(kernelRadius))
	case Density3D:
		return float64(count) / (4.0 / 3.0 * math.Pi * kernelRadius * kernelRadius * kernelRadius)
	default: // DensityKNN
		return float64(count)
	}
}

// densityFromSpacing estimates density from the distance to the nearest
// neighbor, treating that distance as the local point spacing.
func densityFromSpacing(d DensityType, spacing float64) float64 {
	switch d {
	case Density2D:
		return 1.0 / (math.Pi * utils.Square(spacing))
	case Density3D:
		return 1.0 / (4.0 / 3.0 * math.Pi * spacing * spacing * spacing)
	default: // DensityKNN
		return 1.0 / spacing
	}
}
