// Package sweep runs the segmenter over a grid of tuning parameters and
// ranks the combinations by their evaluation scores.
package sweep

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/mapseg/internal/config"
)

// Upper bounds on values per param and on total combos.
const (
	maxValuesPerParam = 1000
	maxCombos         = 10000
)

// Param is one swept tuning field and the values it takes. Name is the
// field's JSON key in config.TuningConfig (e.g. "ncut_threshold").
type Param struct {
	Name   string
	Values []float64
}

// ParseParam parses "name=min:max:step" or "name=v1,v2,...".
func ParseParam(s string) (Param, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Param{}, fmt.Errorf("invalid param %q: expected name=values", s)
	}
	if !knownParam(name) {
		return Param{}, fmt.Errorf("unknown tuning param %q", name)
	}

	var values []float64
	var err error
	if strings.Contains(rest, ":") {
		values, err = parseRange(rest)
	} else {
		values, err = parseList(rest)
	}
	if err != nil {
		return Param{}, fmt.Errorf("param %s: %w", name, err)
	}
	if len(values) == 0 {
		return Param{}, fmt.Errorf("param %s: no values", name)
	}
	return Param{Name: name, Values: values}, nil
}

func parseList(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}
	var bounds [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range value %q: %w", p, err)
		}
		bounds[i] = v
	}
	lo, hi, step := bounds[0], bounds[1], bounds[2]
	if !(step > 0) {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}
	if lo > hi {
		return nil, fmt.Errorf("range min %v exceeds max %v", lo, hi)
	}
	if (hi-lo)/step+1 > maxValuesPerParam {
		return nil, fmt.Errorf("range %q yields more than %d values", s, maxValuesPerParam)
	}
	return GenerateRange(lo, hi, step), nil
}

// GenerateRange returns lo, lo+step, ... up to hi inclusive. Values are
// computed by index and rounded to 1e-9.
func GenerateRange(lo, hi, step float64) []float64 {
	if !(step > 0) || lo > hi {
		return nil
	}
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((lo+float64(i)*step)*1e9) / 1e9
	}
	return out
}

// Combo is one point of the sweep grid, keyed by tuning field name.
type Combo map[string]float64

// String formats the combo with keys in sorted order.
func (c Combo) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(c[k], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Apply returns a copy of base with the combo's values set and validated.
// Integer fields reject fractional values.
func (c Combo) Apply(base *config.TuningConfig) (*config.TuningConfig, error) {
	if base == nil {
		base = config.DefaultTuningConfig()
	}
	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for name, v := range c {
		if !knownParam(name) {
			return nil, fmt.Errorf("unknown tuning param %q", name)
		}
		fields[name] = v
	}
	data, err = json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := config.EmptyTuningConfig()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("combo %s: %w", c, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("combo %s: %w", c, err)
	}
	return out, nil
}

// Expand returns the cartesian product of params. The last param varies
// fastest.
func Expand(params []Param) ([]Combo, error) {
	if len(params) == 0 {
		return []Combo{{}}, nil
	}
	total := 1
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name] {
			return nil, fmt.Errorf("param %s given twice", p.Name)
		}
		seen[p.Name] = true
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("param %s: no values", p.Name)
		}
		total *= len(p.Values)
		if total > maxCombos {
			return nil, fmt.Errorf("parameter combinations would exceed safe limit of %d", maxCombos)
		}
	}

	combos := make([]Combo, total)
	repeat := 1
	for d := len(params) - 1; d >= 0; d-- {
		p := params[d]
		for i := range combos {
			if combos[i] == nil {
				combos[i] = make(Combo, len(params))
			}
			combos[i][p.Name] = p.Values[(i/repeat)%len(p.Values)]
		}
		repeat *= len(p.Values)
	}
	return combos, nil
}

var tunableParams = func() map[string]bool {
	data, err := json.Marshal(config.DefaultTuningConfig())
	if err != nil {
		panic(err)
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		panic(err)
	}
	out := make(map[string]bool)
	for k, v := range fields {
		if _, ok := v.(float64); ok {
			out[k] = true
		}
	}
	return out
}()

// knownParam reports whether name is a numeric tuning field.
func knownParam(name string) bool {
	return tunableParams[name]
}
