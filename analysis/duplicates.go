package analysis

import (
	"context"

	"github.com/pkg/errors"

	"github.com/viam-labs/pointcloud-analysis/octree"
	pc "github.com/viam-labs/pointcloud-analysis/pointcloud"
)

// FlagDuplicatePoints marks points that duplicate an earlier point. out gets
// 0 for every point that is kept and 1 for every point within minDistance of
// a kept point, so deleting the flagged points leaves no two survivors closer
// than minDistance. A minDistance of zero flags exact coincidences only.
//
// Points are visited in index order and a point already flagged is never used
// as a pivot, so of two mutual duplicates only the later one is flagged. The
// pass writes flags across cells and therefore always runs sequentially;
// Config.Sequential is ignored. On cancellation it returns ErrCancelled and
// out holds the flags of the points visited so far.
func FlagDuplicatePoints(ctx context.Context, cloud pc.PointCloud, minDistance float64, out *pc.ScalarField, cfg *Config) error {
	if cloud == nil || cloud.Size() == 0 {
		return errors.Wrap(ErrInvalidInput, "empty point cloud")
	}
	if out == nil || out.Len() != cloud.Size() {
		return errors.Wrap(ErrInvalidInput, "output field does not match the cloud")
	}
	if minDistance < 0 {
		return errors.Wrapf(ErrInvalidInput, "min distance %f is negative", minDistance)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	ot := cfg.Octree
	if ot == nil {
		var err error
		ot, err = octree.Build(ctx, cloud, cfg.logger())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ErrCancelled
			}
			return errors.Wrapf(ErrOctreeComputation, "%v", err)
		}
	}

	out.Fill(0)
	level := ot.BestLevelForRadius(minDistance)
	n := cloud.Size()
	var buf []int
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if out.At(i) == 0 {
			buf = ot.RadiusQuery(cloud.At(i), minDistance, level, buf)
			for _, j := range buf {
				if j != i {
					out.Set(j, 1)
				}
			}
		}
		if cfg.Progress != nil {
			cfg.Progress(float64(i+1) / float64(n))
		}
	}
	return nil
}
