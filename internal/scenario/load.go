package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/aurora-verify/internal/errs"
)

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads scenarios from a YAML file. The file holds either a
// top-level "scenarios" list or a single scenario document; several
// documents separated by "---" are also accepted. Durations use Go syntax
// ("30s", "2m").
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("read scenarios file %s", path), err)
	}
	out, err := Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("parse scenarios file %s", path), err)
	}
	return out, nil
}

// Parse decodes scenarios from YAML.
func Parse(data []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var out []Scenario
	for doc := 0; ; doc++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("document %d: %w", doc+1, err)
		}
		if isList(&node) {
			var f scenarioFile
			if err := node.Decode(&f); err != nil {
				return nil, fmt.Errorf("document %d: %w", doc+1, err)
			}
			out = append(out, f.Scenarios...)
			continue
		}
		var sc Scenario
		if err := node.Decode(&sc); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc+1, err)
		}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, errors.New("no scenarios found")
	}
	return out, nil
}

// isList reports whether a document has a top-level "scenarios" key.
func isList(doc *yaml.Node) bool {
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "scenarios" {
			return true
		}
	}
	return false
}
