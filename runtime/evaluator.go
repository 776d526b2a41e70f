package runtime

import (
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/checkpoint/types"
)

/**
 * evaluate runs the optional validator and attaches the outcome to the
 * event in place. Nothing propagates to the caller: a false return is
 * a Failed outcome, a returned error or a panic becomes a Faulted
 * outcome tagged with the fault, no validator means Untested.
 */
func evaluate(ev *types.Event, v types.Validator, deps types.DepContext) {
	ev.EvaluatedAt = time.Now()
	if v == nil {
		ev.Status = types.Untested
		return
	}

	ok, err := runValidator(v, ev.Data, deps)
	switch {
	case err != nil:
		ev.Status = types.Faulted
		ev.Fault = err.Error()
	case ok:
		ev.Status = types.Passed
	default:
		ev.Status = types.Failed
	}
}

func runValidator(v types.Validator, data types.Data, deps types.DepContext) (ok bool, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = errors.Errorf("validator panic: %v", r)
		}
	}()
	return v(data, deps)
}
