package graph

import (
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

/**
 * YAML flow-definition file layout:
 *
 *   flows:
 *     - name: checkout
 *       version: "1"
 *       nodes:
 *         - id: cart_created
 *           description: cart created for a customer
 *         - id: discount_applied
 *           deps: [cart_created]
 */
type fileSpec struct {
	Flows []flowSpec `yaml:"flows"`
}

type flowSpec struct {
	Name    string     `yaml:"name"`
	Version string     `yaml:"version"`
	Nodes   []nodeSpec `yaml:"nodes"`
}

type nodeSpec struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Deps        []string `yaml:"deps"`
}

// Parse decodes and validates every flow declared in a YAML document.
func Parse(b []byte) ([]*Definition, error) {
	spec := &fileSpec{}
	if err := yaml.Unmarshal(b, spec); err != nil {
		return nil, errors.Annotatef(err, "failed to decode flow definitions")
	}
	if len(spec.Flows) == 0 {
		return nil, errors.NotFoundf("flow definitions")
	}

	defs := make([]*Definition, 0, len(spec.Flows))
	for _, fs := range spec.Flows {
		def := New(fs.Name)
		def.Version = fs.Version
		// declare all nodes first so edges may point forward
		for _, ns := range fs.Nodes {
			if err := def.Node(ns.ID, ns.Description); err != nil {
				return nil, errors.Trace(err)
			}
		}
		for _, ns := range fs.Nodes {
			if len(ns.Deps) == 0 {
				continue
			}
			if err := def.Dep(ns.ID, ns.Deps...); err != nil {
				return nil, errors.Trace(err)
			}
		}
		if err := def.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func LoadFile(path string) ([]*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read flow definitions %s", path)
	}
	return Parse(b)
}
