package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/engine"
)

// line is one meaningful line of a .reson file.
type line struct {
	no     int
	indent int
	fields []string
}

func (l line) errorf(format string, args ...any) error {
	return &SyntaxError{Line: l.no, Msg: fmt.Sprintf(format, args...)}
}

// readLines drops blank lines and # comments and measures indentation.
func readLines(r io.Reader) ([]line, error) {
	var lines []line
	sc := bufio.NewScanner(r)
	no := 0
	for sc.Scan() {
		no++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		indent := len(text) - len(strings.TrimLeft(text, " \t"))
		lines = append(lines, line{no: no, indent: indent, fields: fields})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return lines, nil
}

// block returns the lines after start that are indented deeper than indent.
func block(lines []line, start, indent int) (body []line, next int) {
	next = start
	for next < len(lines) && lines[next].indent > indent {
		next++
	}
	return lines[start:next], next
}

// ParseReson reads the indentation-structured .reson format:
//
//	wood
//	  resource
//	    unit logs
//	    max 100
//	chop
//	  process
//	    produce
//	      wood 5
//	    period 1 s
//
// A name line is followed by a "resource" or "process" line whose deeper
// indented lines are the entity's fields. "wood resource" on one line also works.
func ParseReson(r io.Reader) (*Definitions, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	defs := &Definitions{}
	seen := names{}
	var pending *line

	for i := 0; i < len(lines); {
		ln := lines[i]
		i++

		kind := ln.fields[len(ln.fields)-1]
		if (kind == "resource" || kind == "process") && len(ln.fields) <= 2 {
			var name string
			switch {
			case len(ln.fields) == 2:
				if pending != nil {
					return nil, pending.errorf("%q has no resource or process declaration", pending.fields[0])
				}
				name = ln.fields[0]
			case pending != nil:
				name = pending.fields[0]
			default:
				return nil, ln.errorf("%s declaration without a name", kind)
			}
			pending = nil

			var body []line
			body, i = block(lines, i, ln.indent)
			if err := seen.claim(name, kind); err != nil {
				return nil, ln.errorf("%v", err)
			}
			if kind == "resource" {
				res, err := parseResource(name, body)
				if err != nil {
					return nil, err
				}
				defs.Resources = append(defs.Resources, res)
			} else {
				proc, err := parseProcess(name, body)
				if err != nil {
					return nil, err
				}
				defs.addProcess(proc)
			}
			continue
		}

		if len(ln.fields) != 1 {
			return nil, ln.errorf("expected a name, got %q", strings.Join(ln.fields, " "))
		}
		if pending != nil {
			return nil, pending.errorf("%q has no resource or process declaration", pending.fields[0])
		}
		pending = &ln
	}
	if pending != nil {
		return nil, pending.errorf("%q has no resource or process declaration", pending.fields[0])
	}
	return defs, nil
}

func parseResource(name string, body []line) (*economy.Resource, error) {
	res := economy.NewResource(name)
	for _, ln := range body {
		key := ln.fields[0]
		switch key {
		case "unit":
			if len(ln.fields) != 2 {
				return nil, ln.errorf("unit takes one value")
			}
			res.Unit = ln.fields[1]
		case "max", "amount":
			v, err := parseFloatField(ln)
			if err != nil {
				return nil, err
			}
			if key == "max" {
				res.Max = v
			} else {
				res.Amount = v
			}
		case "life":
			life, err := parseTimeField(ln)
			if err != nil {
				return nil, err
			}
			res.Life = life
		default:
			return nil, ln.errorf("unknown resource field %q", key)
		}
	}
	return res, nil
}

func parseProcess(name string, body []line) (*economy.Process, error) {
	proc := economy.NewProcess(name)
	for i := 0; i < len(body); {
		ln := body[i]
		i++
		key := ln.fields[0]
		switch key {
		case "use", "produce", "catalyze":
			var sub []line
			sub, i = block(body, i, ln.indent)
			list, err := parseQuantities(ln, sub)
			if err != nil {
				return nil, err
			}
			switch key {
			case "use":
				proc.Input = append(proc.Input, list...)
			case "produce":
				proc.Output = append(proc.Output, list...)
			case "catalyze":
				proc.Catalyst = append(proc.Catalyst, list...)
			}
		case "constraint":
			var sub []line
			sub, i = block(body, i, ln.indent)
			if len(ln.fields) > 1 {
				sub = append([]line{{no: ln.no, indent: ln.indent, fields: ln.fields[1:]}}, sub...)
			}
			for _, cl := range sub {
				c, err := parseConstraint(cl)
				if err != nil {
					return nil, err
				}
				proc.Constraints = append(proc.Constraints, c)
			}
		case "period", "period_delta":
			v, err := parseTimeField(ln)
			if err != nil {
				return nil, err
			}
			if key == "period" {
				if v <= 0 {
					return nil, ln.errorf("period must be positive")
				}
				proc.Period = v
			} else {
				proc.PeriodDelta = v
			}
		case "on_use":
			v, err := parseFloatField(ln)
			if err != nil {
				return nil, err
			}
			if v < 0 {
				return nil, ln.errorf("on_use must not be negative")
			}
			proc.OnUse = v
		case "max_concurrency":
			if len(ln.fields) != 2 {
				return nil, ln.errorf("max_concurrency takes one value")
			}
			n, err := strconv.Atoi(ln.fields[1])
			if err != nil || n < 1 {
				return nil, ln.errorf("max_concurrency must be a positive integer, got %q", ln.fields[1])
			}
			proc.MaxConcurrency = n
		default:
			return nil, ln.errorf("unknown process field %q", key)
		}
	}
	proc.PeriodDelta = alignWeekly(proc.Period, proc.PeriodDelta)
	return proc, nil
}

// parseQuantities reads "<name> <qty>" entries, either nested under the
// header line or inline on it ("use wood 5").
func parseQuantities(header line, sub []line) ([]economy.Quantity, error) {
	entries := sub
	switch len(header.fields) {
	case 1:
	case 3:
		entries = append([]line{{no: header.no, indent: header.indent, fields: header.fields[1:]}}, sub...)
	default:
		return nil, header.errorf("%s takes a nested list or one inline entry", header.fields[0])
	}

	list := make([]economy.Quantity, 0, len(entries))
	for _, ln := range entries {
		if len(ln.fields) != 2 {
			return nil, ln.errorf("expected \"<name> <quantity>\", got %q", strings.Join(ln.fields, " "))
		}
		qty, err := strconv.ParseFloat(ln.fields[1], 64)
		if err != nil {
			return nil, ln.errorf("invalid quantity %q", ln.fields[1])
		}
		if qty < 0 {
			return nil, ln.errorf("quantity for %q must not be negative", ln.fields[0])
		}
		list = append(list, economy.Quantity{Name: ln.fields[0], Amount: qty})
	}
	return list, nil
}

// constraintScale describes one time scale usable in a constraint line.
type constraintScale struct {
	modulo int64
	mult   int64
	offset int64 // Added to each value before scaling
}

var constraintScales = map[string]constraintScale{
	"s": {modulo: engine.SecondsPerMinute, mult: 1},
	"m": {modulo: engine.SecondsPerHour, mult: engine.SecondsPerMinute},
	"h": {modulo: engine.SecondsPerDay, mult: engine.SecondsPerHour},
	"d": {modulo: engine.SecondsPerWeek, mult: engine.SecondsPerDay, offset: 4},
	"w": {modulo: engine.SecondsPerWeek, mult: engine.SecondsPerDay, offset: 4},
}

// parseConstraint reads "<scale> <range> [<range>...]" where a range is
// "a" or "a-b", both inclusive. Day-of-week values count from Monday = 0.
func parseConstraint(ln line) (economy.Constraint, error) {
	if len(ln.fields) == 0 {
		return economy.Constraint{}, ln.errorf("empty constraint")
	}
	scale, ok := constraintScales[ln.fields[0]]
	if !ok {
		return economy.Constraint{}, ln.errorf("unknown constraint scale %q (want s, m, h, d or w)", ln.fields[0])
	}
	if len(ln.fields) < 2 {
		return economy.Constraint{}, ln.errorf("constraint needs at least one range")
	}

	limit := scale.modulo / scale.mult
	value := func(tok string) (int64, error) {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil || v < 0 || v >= limit {
			return 0, ln.errorf("constraint value %q out of range 0-%d", tok, limit-1)
		}
		return v, nil
	}

	c := economy.Constraint{Modulo: scale.modulo}
	for _, tok := range ln.fields[1:] {
		lo, hi, isRange := strings.Cut(tok, "-")
		a, err := value(lo)
		if err != nil {
			return economy.Constraint{}, err
		}
		b := a
		if isRange {
			if b, err = value(hi); err != nil {
				return economy.Constraint{}, err
			}
		}
		c.Ranges = append(c.Ranges, economy.Range{
			Start: ((a + scale.offset) * scale.mult) % scale.modulo,
			End:   ((b+1+scale.offset)*scale.mult - 1) % scale.modulo,
		})
	}
	return c, nil
}

func parseFloatField(ln line) (float64, error) {
	if len(ln.fields) != 2 {
		return 0, ln.errorf("%s takes one value", ln.fields[0])
	}
	v, err := strconv.ParseFloat(ln.fields[1], 64)
	if err != nil {
		return 0, ln.errorf("invalid %s %q", ln.fields[0], ln.fields[1])
	}
	return v, nil
}

func parseTimeField(ln line) (int64, error) {
	if len(ln.fields) < 2 || len(ln.fields) > 3 {
		return 0, ln.errorf("%s takes a time like \"1 h\"", ln.fields[0])
	}
	v, err := ParseDuration(strings.Join(ln.fields[1:], " "))
	if err != nil {
		return 0, ln.errorf("%s: %v", ln.fields[0], err)
	}
	return v, nil
}
