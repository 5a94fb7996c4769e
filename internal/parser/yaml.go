package parser

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/reson/internal/economy"
)

//go:embed definitions.schema.json
var schemaJSON string

const schemaURL = "definitions.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func definitionsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// yamlTime accepts "90s", "1 h" or a bare number of seconds.
type yamlTime struct {
	seconds int64
	set     bool
}

func (t *yamlTime) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseDuration(n.Value)
	if err != nil {
		return &SyntaxError{Line: n.Line, Msg: err.Error()}
	}
	t.seconds, t.set = v, true
	return nil
}

// yamlQuantities keeps mapping order, which plain Go maps lose.
type yamlQuantities []economy.Quantity

func (q *yamlQuantities) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return &SyntaxError{Line: n.Line, Msg: "expected a mapping of name: quantity"}
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		amount, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return &SyntaxError{Line: val.Line, Msg: fmt.Sprintf("invalid quantity %q for %q", val.Value, key.Value)}
		}
		*q = append(*q, economy.Quantity{Name: key.Value, Amount: amount})
	}
	return nil
}

type yamlResource struct {
	Name   string   `yaml:"name"`
	Unit   string   `yaml:"unit"`
	Max    *float64 `yaml:"max"`
	Amount float64  `yaml:"amount"`
	Life   yamlTime `yaml:"life"`
}

type yamlProcess struct {
	Name           string         `yaml:"name"`
	Input          yamlQuantities `yaml:"input"`
	Output         yamlQuantities `yaml:"output"`
	Catalyst       yamlQuantities `yaml:"catalyst"`
	Period         yamlTime       `yaml:"period"`
	PeriodDelta    yamlTime       `yaml:"period_delta"`
	MaxConcurrency int            `yaml:"max_concurrency"`
	OnUse          float64        `yaml:"on_use"`
	Constraints    []yaml.Node    `yaml:"constraints"`
}

type yamlDocument struct {
	Resources []yamlResource `yaml:"resources"`
	Processes []yamlProcess  `yaml:"processes"`
}

// ParseYAML reads definitions from YAML after validating the document
// against the embedded JSON Schema. Constraints use the .reson line syntax.
func ParseYAML(raw []byte) (*Definitions, error) {
	if err := validateYAML(raw); err != nil {
		return nil, err
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}

	defs := &Definitions{}
	seen := names{}
	for _, yr := range doc.Resources {
		if err := seen.claim(yr.Name, "resource"); err != nil {
			return nil, &SyntaxError{Msg: err.Error()}
		}
		res := economy.NewResource(yr.Name)
		res.Unit = yr.Unit
		res.Amount = yr.Amount
		res.Life = yr.Life.seconds
		if yr.Max != nil {
			res.Max = *yr.Max
		}
		defs.Resources = append(defs.Resources, res)
	}

	for _, yp := range doc.Processes {
		if err := seen.claim(yp.Name, "process"); err != nil {
			return nil, &SyntaxError{Msg: err.Error()}
		}
		proc := economy.NewProcess(yp.Name)
		proc.Input = yp.Input
		proc.Output = yp.Output
		proc.Catalyst = yp.Catalyst
		proc.OnUse = yp.OnUse
		if yp.Period.set {
			if yp.Period.seconds <= 0 {
				return nil, &SyntaxError{Msg: fmt.Sprintf("process %q: period must be positive", yp.Name)}
			}
			proc.Period = yp.Period.seconds
		}
		proc.PeriodDelta = yp.PeriodDelta.seconds
		if yp.MaxConcurrency > 0 {
			proc.MaxConcurrency = yp.MaxConcurrency
		}
		for _, n := range yp.Constraints {
			c, err := parseConstraint(line{no: n.Line, indent: n.Column, fields: strings.Fields(n.Value)})
			if err != nil {
				return nil, err
			}
			proc.Constraints = append(proc.Constraints, c)
		}
		proc.PeriodDelta = alignWeekly(proc.Period, proc.PeriodDelta)
		defs.addProcess(proc)
	}
	return defs, nil
}

// validateYAML checks the document shape. The YAML is round-tripped through
// JSON so the validator sees plain JSON values.
func validateYAML(raw []byte) error {
	sch, err := definitionsSchema()
	if err != nil {
		return fmt.Errorf("compile definitions schema: %w", err)
	}

	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode definitions: %w", err)
	}
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("definitions are not plain data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return &SyntaxError{Msg: err.Error()}
	}
	return nil
}
