package types

import (
	"context"

	"github.com/warriorguo/checkpoint/graph"
)

/**
 * Flow is the builder handed to a FlowHandler while a flow definition
 * is being registered. Nodes must be declared before edges referencing
 * them; the whole graph is validated for acyclicity when the handler
 * returns.
 */
type Flow interface {
	Node(nodeID, description string) error
	Dep(nodeID string, dependsOn ...string) error
}

type FlowHandler func(f Flow) error

type Engine interface {
	/**
	 * RegisterFlow declares a flow graph under name. Registering a name
	 * that already exists returns an AlreadyExists error: definitions
	 * are immutable once installed.
	 */
	RegisterFlow(name string, handler FlowHandler) error
	RegisterDefinition(def *graph.Definition) error
	// LoadFlowFile registers every flow declared in a YAML definition file.
	LoadFlowFile(path string) error

	ListFlowNames() ([]string, error)
	/**
	 * ListNodes walks the declared node ids of a flow in declaration
	 * order. The iterator returns false to stop; the walk is finite and
	 * restartable.
	 */
	ListNodes(flow string, iterator func(nodeID string) bool) error
	// DeclareNode is idempotent; re-declaring overwrites the description.
	DeclareNode(flow, nodeID, description string)

	/**
	 * Ensure records one occurrence of a checkpoint node within a run
	 * and evaluates its validator, if any, against the event data and
	 * the resolved dependency events of the same run. Fire-and-forget:
	 * violations, validator faults, store faults and delivery faults
	 * are recorded or logged, never surfaced to the caller.
	 */
	Ensure(ctx context.Context, flow, runID, nodeID string, data Data, opts ...EnsureOption)

	GetEvent(ctx context.Context, flow, runID, nodeID string) (*Event, error)
	RunEvents(ctx context.Context, flow, runID string) (map[string]*Event, error)

	RenderFlow(name string) (string, error)
	RenderRun(ctx context.Context, flow, runID string) (string, error)

	/**
	 * Close flushes queued report batches and stops the delivery
	 * workers. Events ensured after Close are dropped.
	 */
	Close(ctx context.Context) error
}

type EnsureRequest struct {
	DepIDs      []string
	Validator   Validator
	Description string
}

type EnsureOption func(*EnsureRequest)

func WithDeps(nodeIDs ...string) EnsureOption {
	return func(req *EnsureRequest) {
		req.DepIDs = append(req.DepIDs, nodeIDs...)
	}
}

func WithValidator(v Validator) EnsureOption {
	return func(req *EnsureRequest) {
		req.Validator = v
	}
}

func WithDescription(description string) EnsureOption {
	return func(req *EnsureRequest) {
		req.Description = description
	}
}
