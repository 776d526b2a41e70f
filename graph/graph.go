package graph

import (
	"github.com/juju/errors"
)

/**
 * Node is a declared checkpoint within a flow. DepIDs are the node ids
 * this checkpoint depends on; every id must be declared in the same
 * flow before the edge is added.
 */
type Node struct {
	ID          string   `json:",omitempty"`
	Description string   `json:",omitempty"`
	DepIDs      []string `json:",omitempty"`
}

/**
 * Definition is a declared, versioned flow graph. It is built once,
 * validated for acyclicity, and never mutated after being installed in
 * an engine; the runtime only instantiates occurrences of its nodes.
 */
type Definition struct {
	Name    string           `json:",omitempty"`
	Version string           `json:",omitempty"`
	Nodes   map[string]*Node `json:",omitempty"`

	// declaration order, kept for deterministic listing and rendering
	order []string
}

func New(name string) *Definition {
	return &Definition{
		Name:  name,
		Nodes: map[string]*Node{},
	}
}

func (d *Definition) Node(nodeID, description string) error {
	if nodeID == "" {
		return errors.BadRequestf("flow %s: empty node id", d.Name)
	}
	if _, exists := d.Nodes[nodeID]; exists {
		return errors.AlreadyExistsf("flow %s node %s", d.Name, nodeID)
	}
	d.Nodes[nodeID] = &Node{ID: nodeID, Description: description}
	d.order = append(d.order, nodeID)
	return nil
}

/**
 * Dep declares that nodeID depends on every id in dependsOn. An edge
 * referencing an undeclared node is a configuration error, caught here
 * rather than at event-resolution time.
 */
func (d *Definition) Dep(nodeID string, dependsOn ...string) error {
	node, exists := d.Nodes[nodeID]
	if !exists {
		return errors.NotFoundf("flow %s node %s", d.Name, nodeID)
	}
	for _, dep := range dependsOn {
		if _, exists := d.Nodes[dep]; !exists {
			return errors.NotFoundf("flow %s dep %s of %s", d.Name, dep, nodeID)
		}
		if dep == nodeID {
			return errors.Forbiddenf("flow %s node %s depends on itself", d.Name, nodeID)
		}
		node.DepIDs = append(node.DepIDs, dep)
	}
	return d.checkAcyclic()
}

func (d *Definition) Has(nodeID string) bool {
	_, exists := d.Nodes[nodeID]
	return exists
}

// List walks node ids in declaration order until the iterator returns false.
func (d *Definition) List(iterator func(nodeID string) bool) {
	for _, id := range d.order {
		if !iterator(id) {
			break
		}
	}
}

/**
 * Validate checks the whole definition: non-empty name, at least one
 * node, edges resolvable, and no dependency cycle.
 */
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.BadRequestf("flow name is empty")
	}
	if len(d.Nodes) == 0 {
		return errors.BadRequestf("flow %s has no nodes", d.Name)
	}
	for id, node := range d.Nodes {
		for _, dep := range node.DepIDs {
			if _, exists := d.Nodes[dep]; !exists {
				return errors.NotFoundf("flow %s dep %s of %s", d.Name, dep, id)
			}
		}
	}
	return d.checkAcyclic()
}

const (
	colorWhite = 0
	colorGrey  = 1
	colorBlack = 2
)

func (d *Definition) checkAcyclic() error {
	color := make(map[string]int, len(d.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = colorGrey
		for _, dep := range d.Nodes[id].DepIDs {
			switch color[dep] {
			case colorGrey:
				return errors.Forbiddenf("flow %s: dependency cycle through %s", d.Name, dep)
			case colorWhite:
				if err := visit(dep); err != nil {
					return errors.Trace(err)
				}
			}
		}
		color[id] = colorBlack
		return nil
	}

	for _, id := range d.order {
		if color[id] == colorWhite {
			if err := visit(id); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}
