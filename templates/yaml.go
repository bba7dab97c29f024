package templates

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/netgrip/netgrip/devicefsm"
)

// yamlTemplate is the on-disk shape of a custom device template.
type yamlTemplate struct {
	Vendor string `yaml:"vendor"`
	States []struct {
		Name    string   `yaml:"name"`
		Prompts []string `yaml:"prompts"`
	} `yaml:"states"`
	Edges []struct {
		From    string      `yaml:"from"`
		To      string      `yaml:"to"`
		Command string      `yaml:"command"`
		Inputs  []yamlInput `yaml:"inputs"`
	} `yaml:"edges"`
	ErrorPatterns       []string    `yaml:"error_patterns"`
	IgnoreErrorPatterns []string    `yaml:"ignore_error_patterns"`
	GlobalInputs        []yamlInput `yaml:"global_inputs"`
}

type yamlInput struct {
	Trigger   string `yaml:"trigger"`
	Response  string `yaml:"response"`
	Sensitive bool   `yaml:"sensitive"`
}

func convertInputs(in []yamlInput) []devicefsm.DynamicInput {
	out := make([]devicefsm.DynamicInput, 0, len(in))
	for _, i := range in {
		out = append(out, devicefsm.DynamicInput{Trigger: i.Trigger, Response: i.Response, Sensitive: i.Sensitive})
	}
	return out
}

// LoadYAML parses a custom device template. The configuration is validated by
// constructing a handler from it, so regex and graph errors surface here
// rather than at session time.
func LoadYAML(data []byte) (devicefsm.Config, error) {
	var tpl yamlTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return devicefsm.Config{}, fmt.Errorf("parse template: %w", err)
	}

	cfg := devicefsm.Config{
		ErrorPatterns:       tpl.ErrorPatterns,
		IgnoreErrorPatterns: tpl.IgnoreErrorPatterns,
		GlobalInputs:        convertInputs(tpl.GlobalInputs),
	}
	for _, s := range tpl.States {
		cfg.States = append(cfg.States, devicefsm.StateConfig{Name: s.Name, Prompts: s.Prompts})
	}
	for _, e := range tpl.Edges {
		cfg.Edges = append(cfg.Edges, devicefsm.EdgeConfig{
			From:    e.From,
			To:      e.To,
			Command: e.Command,
			Inputs:  convertInputs(e.Inputs),
		})
	}

	if _, err := devicefsm.New(cfg); err != nil {
		return devicefsm.Config{}, fmt.Errorf("validate template: %w", err)
	}
	return cfg, nil
}
