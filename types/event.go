package types

import "time"

/**
 * Event is one recorded occurrence of a checkpoint node within a run.
 * Events are append-only facts: re-ensuring the same (flow, run, node)
 * overwrites the stored event with a fresh occurrence, it never merges.
 */
type Event struct {
	Flow        string   `json:",omitempty"`
	RunID       string   `json:",omitempty"`
	NodeID      string   `json:",omitempty"`
	Description string   `json:",omitempty"`
	Data        Data     `json:",omitempty"`
	DepIDs      []string `json:",omitempty"`

	Status      OutcomeStatus `json:",omitempty"`
	// Fault carries the validator error when Status is Faulted.
	Fault       string        `json:",omitempty"`
	RecordedAt  time.Time     `json:",omitempty"`
	EvaluatedAt time.Time     `json:",omitempty"`
}

/**
 * Dep is a dependency event as a validator sees it. Recorded is false
 * when the dependency has not been recorded in the run yet; Data is
 * then empty, never nil, so typed getters stay safe on absent deps.
 */
type Dep struct {
	NodeID   string
	Recorded bool
	Data     Data
}

// DepContext holds the resolved dependencies of the event under evaluation.
type DepContext struct {
	Deps []Dep
}

// Dep returns the entry for nodeID, or an absent placeholder.
func (c *DepContext) Dep(nodeID string) Dep {
	for _, d := range c.Deps {
		if d.NodeID == nodeID {
			return d
		}
	}
	return Dep{NodeID: nodeID, Data: Data{}}
}

func (c *DepContext) Present(nodeID string) bool {
	return c.Dep(nodeID).Recorded
}

/**
 * Validator is a pure predicate over an event's data and its resolved
 * dependencies. A false return or a non-nil error is a business
 * violation, never a caller-visible failure; a panic is recovered and
 * treated as a fault. Validators must not call back into the engine:
 * the evaluating goroutine holds the event's key lock.
 */
type Validator func(data Data, deps DepContext) (bool, error)
