package runtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/warriorguo/checkpoint/graph"
	"github.com/warriorguo/checkpoint/types"
)

/**
 * renderDOT draws a flow definition as a DOT digraph, dependency edges
 * pointing at the dependent node. With run events given, nodes are
 * colored by outcome: green passed, red violation, yellow recorded or
 * untested, white never recorded in the run.
 */
func renderDOT(def *graph.Definition, events map[string]*types.Event) (string, error) {
	renderer := newFlowRenderer()
	return renderer.generateDOT(def, events)
}

func newFlowRenderer() *flowRenderer {
	return &flowRenderer{nil, &strings.Builder{}}
}

type flowRenderer struct {
	events map[string]*types.Event
	sb     *strings.Builder
}

func (r *flowRenderer) generateDOT(def *graph.Definition, events map[string]*types.Event) (string, error) {
	if events == nil {
		events = make(map[string]*types.Event)
	}
	r.events = events

	r.write("digraph D {")
	def.List(func(nodeID string) bool {
		r.drawNode(nodeID)
		return true
	})
	def.List(func(nodeID string) bool {
		for _, dep := range def.Nodes[nodeID].DepIDs {
			r.write("%s -> %s", idString(dep), idString(nodeID))
		}
		return true
	})
	r.write("label=%s", quoteString(def.Name))
	r.write("}")
	return r.sb.String(), nil
}

func packToComment(ev *types.Event) string {
	s, _ := json.Marshal(ev)
	return formatNL(addSlashes(string(s)))
}

func (r *flowRenderer) calcAttr(nodeID string) string {
	ev, exists := r.events[nodeID]
	if !exists {
		return ""
	}

	color := ""
	switch {
	case ev.Status == types.Passed:
		color = "green"
	case ev.Status.Violation():
		color = "red"
	default:
		color = "yellow"
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(ev))
}

func (r *flowRenderer) drawNode(nodeID string) {
	attr := r.calcAttr(nodeID)
	r.write("%s [label=%s shape=\"record\"%s]", idString(nodeID), quoteString(nodeID), attr)
}

func (r *flowRenderer) write(format string, s ...any) {
	r.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

/**
 * synthesizeDefinition rebuilds a node set for an implicit flow from
 * the events of one run, edges taken from each event's dep ids. Edges
 * pointing at nodes the run never recorded, and edges a declared graph
 * would reject, are simply skipped.
 */
func synthesizeDefinition(flow string, events map[string]*types.Event) *graph.Definition {
	def := graph.New(flow)

	ids := make([]string, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def.Node(id, events[id].Description)
	}
	for _, id := range ids {
		for _, dep := range events[id].DepIDs {
			if !def.Has(dep) {
				continue
			}
			if err := def.Dep(id, dep); err != nil {
				continue
			}
		}
	}
	return def
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", "."}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
