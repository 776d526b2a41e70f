package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/checkpoint/graph"
)

/**
 * registry tracks flow definitions and every (flow, node) pair seen,
 * whether declared upfront or implicitly by the first ensure call
 * referencing it.
 */
type registry struct {
	mu sync.Mutex

	defs  map[string]*graph.Definition
	nodes map[string]*nodeEntry
	// per-flow declaration order, kept for restartable listing
	order map[string][]string
}

type nodeEntry struct {
	description string
}

func newRegistry() *registry {
	return &registry{
		defs:  map[string]*graph.Definition{},
		nodes: map[string]*nodeEntry{},
		order: map[string][]string{},
	}
}

func (r *registry) formatKey(flow, nodeID string) string {
	return fmt.Sprintf("%s.%s", flow, nodeID)
}

// registerDefinition installs a validated definition. Definitions are
// immutable once installed: re-registering a flow name is an error.
func (r *registry) registerDefinition(def *graph.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return errors.AlreadyExistsf("flow: %s", def.Name)
	}
	r.defs[def.Name] = def
	def.List(func(nodeID string) bool {
		r.declareLocked(def.Name, nodeID, def.Nodes[nodeID].Description)
		return true
	})
	return nil
}

// declare is idempotent; a non-empty description overwrites the prior one.
func (r *registry) declare(flow, nodeID, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.declareLocked(flow, nodeID, description)
}

func (r *registry) declareLocked(flow, nodeID, description string) {
	key := r.formatKey(flow, nodeID)
	entry, exists := r.nodes[key]
	if !exists {
		entry = &nodeEntry{}
		r.nodes[key] = entry
		r.order[flow] = append(r.order[flow], nodeID)
	}
	if description != "" {
		entry.description = description
	}
}

func (r *registry) description(flow, nodeID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.nodes[r.formatKey(flow, nodeID)]; exists {
		return entry.description
	}
	return ""
}

func (r *registry) definition(flow string) (*graph.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.defs[flow]
	return def, exists
}

func (r *registry) hasFlow(flow string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[flow]; exists {
		return true
	}
	_, exists := r.order[flow]
	return exists
}

/**
 * list walks the node ids of a flow in declaration order until the
 * iterator returns false. The order is snapshotted first so the walk
 * is finite and restartable even while declarations keep arriving.
 */
func (r *registry) list(flow string, iterator func(nodeID string) bool) {
	r.mu.Lock()
	ids := make([]string, len(r.order[flow]))
	copy(ids, r.order[flow])
	r.mu.Unlock()

	for _, id := range ids {
		if !iterator(id) {
			break
		}
	}
}

func (r *registry) flowNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.defs))
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		seen[name] = true
		names = append(names, name)
	}
	for name := range r.order {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
