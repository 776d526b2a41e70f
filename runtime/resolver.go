package runtime

import (
	"context"

	"github.com/juju/errors"

	"github.com/warriorguo/checkpoint/types"
	"github.com/warriorguo/checkpoint/utils"
)

type resolver struct {
	runs *runStore
}

/**
 * resolve maps each dependency id to its recorded sibling event in the
 * run. A dependency with no recorded event resolves to an absent entry
 * with empty data, never an error: handlers fire off an external event
 * bus with no ordering guarantee, so out-of-order arrival is expected
 * and it is the validator's call how to treat absence. No graph
 * traversal happens here, cycles are a declaration-time concern.
 */
func (r *resolver) resolve(ctx context.Context, flow, runID string, depIDs []string) (types.DepContext, error) {
	depIDs = utils.UniqueSlice(depIDs)
	dc := types.DepContext{Deps: make([]types.Dep, 0, len(depIDs))}

	var retErr error
	for _, id := range depIDs {
		ev, err := r.runs.load(ctx, flow, runID, id)
		if err != nil {
			retErr = errors.Wrapf(retErr, err, "failed on %s", id)
			ev = nil
		}
		if ev == nil {
			dc.Deps = append(dc.Deps, types.Dep{NodeID: id, Data: types.Data{}})
			continue
		}
		dc.Deps = append(dc.Deps, types.Dep{NodeID: id, Recorded: true, Data: ev.Data})
	}
	return dc, retErr
}
