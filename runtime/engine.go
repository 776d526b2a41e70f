package runtime

import (
	"context"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/checkpoint/graph"
	"github.com/warriorguo/checkpoint/store"
	"github.com/warriorguo/checkpoint/types"
	"github.com/warriorguo/checkpoint/utils"
)

var (
	_ types.Engine = &engine{}
	_ types.Flow   = &flowBuilder{}
)

func NewEngine(s store.Store, sink types.ReportSink, opts *types.Options) types.Engine {
	e := &engine{}
	e.ctx, e.cancel = context.WithCancel(opts.Ctx)
	e.reg = newRegistry()
	e.runs = newRunStore(s)
	e.res = &resolver{runs: e.runs}
	e.disp = newDispatcher(sink, opts)
	e.running = true
	return e
}

type engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	running bool

	reg  *registry
	runs *runStore
	res  *resolver
	disp *dispatcher
}

type flowBuilder struct {
	def *graph.Definition
}

func (b *flowBuilder) Node(nodeID, description string) error {
	return errors.Trace(b.def.Node(nodeID, description))
}

func (b *flowBuilder) Dep(nodeID string, dependsOn ...string) error {
	return errors.Trace(b.def.Dep(nodeID, dependsOn...))
}

func (e *engine) RegisterFlow(name string, handler types.FlowHandler) error {
	def := graph.New(name)
	if err := handler(&flowBuilder{def: def}); err != nil {
		return errors.Trace(err)
	}
	return e.RegisterDefinition(def)
}

func (e *engine) RegisterDefinition(def *graph.Definition) error {
	if def == nil {
		return errors.BadRequestf("definition is nil")
	}
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.reg.registerDefinition(def))
}

func (e *engine) LoadFlowFile(path string) error {
	defs, err := graph.LoadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	for _, def := range defs {
		if err := e.reg.registerDefinition(def); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (e *engine) ListFlowNames() ([]string, error) {
	return e.reg.flowNames(), nil
}

func (e *engine) ListNodes(flow string, iterator func(nodeID string) bool) error {
	if !e.reg.hasFlow(flow) {
		return errors.NotFoundf("flow: %s", flow)
	}
	e.reg.list(flow, iterator)
	return nil
}

func (e *engine) DeclareNode(flow, nodeID, description string) {
	e.reg.declare(flow, nodeID, description)
}

/**
 * Ensure is fire-and-forget on purpose: tracking is advisory, so bad
 * input, store faults and delivery faults are logged and swallowed,
 * never returned. The record+evaluate+save sequence runs under the
 * event's key lock, giving last-write-wins when two handlers race on
 * the same (flow, run, node).
 */
func (e *engine) Ensure(ctx context.Context, flow, runID, nodeID string, data types.Data, opts ...types.EnsureOption) {
	if !e.running {
		log.Warnf("engine closed, dropping %s.%s run %s", flow, nodeID, runID)
		return
	}
	if flow == "" || nodeID == "" || runID == "" {
		log.Warnf("ensure needs flow, node and run ids, got flow=%q node=%q run=%q", flow, nodeID, runID)
		return
	}

	req := &types.EnsureRequest{}
	for _, opt := range opts {
		opt(req)
	}

	e.reg.declare(flow, nodeID, req.Description)
	if req.Description == "" {
		// descriptions are sticky across occurrences of the same node
		req.Description = e.reg.description(flow, nodeID)
	}
	if def, declared := e.reg.definition(flow); declared {
		for _, dep := range req.DepIDs {
			if !def.Has(dep) {
				// tolerated at runtime, it will simply resolve as absent
				log.Warnf("flow %s: dep %s of %s is not a declared node", flow, dep, nodeID)
			}
		}
	}

	ev := &types.Event{
		Flow:        flow,
		RunID:       runID,
		NodeID:      nodeID,
		Description: req.Description,
		Data:        data.Clone(),
		DepIDs:      utils.UniqueSlice(req.DepIDs),
		Status:      types.Recorded,
		RecordedAt:  time.Now(),
	}

	err := e.runs.update(ctx, flow, runID, nodeID, func(prev *types.Event) error {
		if prev != nil {
			log.Debugf("overwriting %s.%s run %s (was %s)", flow, nodeID, runID, prev.Status)
		}
		if err := e.runs.put(ctx, ev); err != nil {
			return errors.Trace(err)
		}
		deps, err := e.res.resolve(ctx, flow, runID, ev.DepIDs)
		if err != nil {
			log.Errorf("resolving deps of %s.%s run %s: %v", flow, nodeID, runID, err)
		}
		evaluate(ev, req.Validator, deps)
		return errors.Trace(e.runs.put(ctx, ev))
	})
	if err != nil {
		log.Errorf("recording %s.%s run %s: %v", flow, nodeID, runID, err)
	}

	if ev.Status.Evaluated() {
		e.disp.enqueue(ev)
	}
}

func (e *engine) GetEvent(ctx context.Context, flow, runID, nodeID string) (*types.Event, error) {
	ev, err := e.runs.load(ctx, flow, runID, nodeID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if ev == nil {
		return nil, errors.NotFoundf("event %s.%s run %s", flow, nodeID, runID)
	}
	return ev, nil
}

func (e *engine) RunEvents(ctx context.Context, flow, runID string) (map[string]*types.Event, error) {
	return e.runs.allForRun(ctx, flow, runID)
}

func (e *engine) RenderFlow(name string) (string, error) {
	def, exists := e.reg.definition(name)
	if !exists {
		return "", errors.NotFoundf("flow: %s", name)
	}
	return renderDOT(def, nil)
}

func (e *engine) RenderRun(ctx context.Context, flow, runID string) (string, error) {
	events, err := e.runs.allForRun(ctx, flow, runID)
	if err != nil {
		return "", errors.Trace(err)
	}
	def, exists := e.reg.definition(flow)
	if !exists {
		def = synthesizeDefinition(flow, events)
	}
	return renderDOT(def, events)
}

func (e *engine) Close(ctx context.Context) error {
	if !e.running {
		return nil
	}
	e.running = false

	err := e.disp.close(ctx)
	e.cancel()
	return errors.Trace(err)
}
