// Package parser reads resource and process definitions from .reson text
// files and from YAML documents.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/talgya/reson/internal/economy"
)

// Definitions are the parsed entities in file order, with processes already
// split into ordinary processes and on-use pools.
type Definitions struct {
	Resources []*economy.Resource
	Processes []*economy.Process
	OnUse     []*economy.Process
}

// SyntaxError points at the offending line of a definition file.
type SyntaxError struct {
	File string
	Line int // 1-based; 0 when the position is unknown
	Msg  string
}

func (e *SyntaxError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return e.Msg
}

// ParseFile reads definitions, choosing the format by extension:
// .yaml and .yml are YAML, anything else is .reson text.
func ParseFile(path string) (*Definitions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	var defs *Definitions
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = ParseYAML(raw)
	default:
		defs, err = ParseReson(strings.NewReader(string(raw)))
	}
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) && se.File == "" {
			se.File = path
		}
		return nil, err
	}
	return defs, nil
}

// names tracks entity names so duplicates are rejected.
type names map[string]string

func (n names) claim(name, kind string) error {
	if prev, ok := n[name]; ok {
		return fmt.Errorf("%s %q already defined as a %s", kind, name, prev)
	}
	n[name] = kind
	return nil
}

func (d *Definitions) addProcess(p *economy.Process) {
	if p.IsPool() {
		d.OnUse = append(d.OnUse, p)
	} else {
		d.Processes = append(d.Processes, p)
	}
}

// AllProcesses returns every process, ordinary first, then pools.
func (d *Definitions) AllProcesses() []*economy.Process {
	out := make([]*economy.Process, 0, len(d.Processes)+len(d.OnUse))
	out = append(out, d.Processes...)
	return append(out, d.OnUse...)
}
