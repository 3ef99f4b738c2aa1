// Package catalog loads the device validation rule catalog: one entry per
// device-type name, each gated by a precondition over the payload's typed
// fields and carrying regex rules for the free-form property bag. The
// catalog is read once at startup and is immutable afterward, so it is
// safe for unsynchronized concurrent reads; picking up changes requires a
// restart.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"employee-manager/internal/api"
)

// ErrConfig marks catalog loading failures. The process must not serve
// traffic when Load fails.
var ErrConfig = errors.New("invalid rule catalog")

// FieldAccessor reads one of the device payload's typed fields as a string.
type FieldAccessor func(*api.DeviceRequest) string

// payloadFields maps precondition field names (lower-cased) to accessors
// over the payload's typed fields. Binding happens at load time, so a
// catalog naming a field the payload shape does not have fails startup
// instead of the first matching request.
var payloadFields = map[string]FieldAccessor{
	"name":      func(d *api.DeviceRequest) string { return d.Name },
	"typeid":    func(d *api.DeviceRequest) string { return strconv.FormatInt(d.TypeID, 10) },
	"isenabled": func(d *api.DeviceRequest) string { return strconv.FormatBool(d.IsEnabled) },
	"mode":      func(d *api.DeviceRequest) string { return d.Mode },
}

// Catalog is the loaded, immutable ruleset. Lookup is a linear scan; the
// catalog is small and static.
type Catalog struct {
	entries []*Entry
}

// Entry holds the conditional rules for one device type.
type Entry struct {
	DeviceType string
	PreName    string
	PreValue   string
	Rules      []*Rule

	pre FieldAccessor
}

// Rule constrains one key of the payload's property bag. A list-form rule
// is a disjunction: the value must match at least one pattern. Program,
// when set, must evaluate to true against the bag.
type Rule struct {
	ParamName string
	Patterns  []*regexp.Regexp
	// ListForm records whether the catalog declared the patterns as a
	// list; it changes how failures are reported, not how many patterns
	// there are.
	ListForm bool
	Program  *vm.Program
}

// Applies reports whether the entry's precondition field matches its
// expected value, compared case-insensitively.
func (e *Entry) Applies(payload *api.DeviceRequest) (bool, error) {
	if e.pre == nil {
		return false, fmt.Errorf("entry %q: precondition %q is not bound to a payload field", e.DeviceType, e.PreName)
	}
	return strings.EqualFold(e.pre(payload), e.PreValue), nil
}

// Entry returns the rules for a device type by exact name match, or nil
// when the type has no conditional rules.
func (c *Catalog) Entry(deviceType string) *Entry {
	for _, e := range c.entries {
		if e.DeviceType == deviceType {
			return e
		}
	}
	return nil
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// --- file format ---

type catalogFile struct {
	Validations []entryJSON `json:"validations"`
}

type entryJSON struct {
	Type            string     `json:"type"`
	PreRequestName  string     `json:"preRequestName"`
	PreRequestValue string     `json:"preRequestValue"`
	Rules           []ruleJSON `json:"rules"`
}

type ruleJSON struct {
	ParamName string          `json:"paramName"`
	Regex     json.RawMessage `json:"regex"`
	Expr      string          `json:"expr"`
}

// Load reads and compiles the rule catalog from path. Any failure wraps
// ErrConfig and is fatal at startup.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON. Split from Load for tests.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrConfig, err)
	}
	if file.Validations == nil {
		return nil, fmt.Errorf("%w: missing top-level \"validations\"", ErrConfig)
	}

	cat := &Catalog{}
	seen := make(map[string]bool, len(file.Validations))
	for i, raw := range file.Validations {
		if raw.Type == "" {
			return nil, fmt.Errorf("%w: entry %d: missing \"type\"", ErrConfig, i)
		}
		if seen[raw.Type] {
			return nil, fmt.Errorf("%w: duplicate entry for device type %q", ErrConfig, raw.Type)
		}
		seen[raw.Type] = true

		pre, ok := payloadFields[strings.ToLower(raw.PreRequestName)]
		if !ok {
			return nil, fmt.Errorf("%w: entry %q: preRequestName %q does not name a payload field",
				ErrConfig, raw.Type, raw.PreRequestName)
		}

		entry := &Entry{
			DeviceType: raw.Type,
			PreName:    raw.PreRequestName,
			PreValue:   raw.PreRequestValue,
			pre:        pre,
		}

		for j, r := range raw.Rules {
			rule, err := parseRule(r)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %q rule %d: %w", ErrConfig, raw.Type, j, err)
			}
			entry.Rules = append(entry.Rules, rule)
		}

		cat.entries = append(cat.entries, entry)
	}
	return cat, nil
}

func parseRule(r ruleJSON) (*Rule, error) {
	if r.ParamName == "" {
		return nil, errors.New("missing paramName")
	}
	rule := &Rule{ParamName: r.ParamName}

	if len(r.Regex) > 0 {
		patterns, listForm, err := parsePatterns(r.Regex)
		if err != nil {
			return nil, err
		}
		rule.Patterns = patterns
		rule.ListForm = listForm
	}

	if r.Expr != "" {
		prog, err := expr.Compile(r.Expr, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile expr: %w", err)
		}
		rule.Program = prog
	}

	if len(rule.Patterns) == 0 && rule.Program == nil {
		return nil, errors.New("rule has neither regex nor expr")
	}
	return rule, nil
}

// parsePatterns accepts either a single regex string or a non-empty list.
// Single strings may carry /.../ delimiters, which are stripped before
// compiling; list elements are compiled verbatim.
func parsePatterns(raw json.RawMessage) ([]*regexp.Regexp, bool, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		re, err := regexp.Compile(strings.Trim(single, "/"))
		if err != nil {
			return nil, false, fmt.Errorf("compile regex: %w", err)
		}
		return []*regexp.Regexp{re}, false, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, fmt.Errorf("regex must be a string or a list of strings")
	}
	if len(list) == 0 {
		return nil, false, errors.New("regex list is empty")
	}
	patterns := make([]*regexp.Regexp, 0, len(list))
	for _, p := range list {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, false, fmt.Errorf("compile regex %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, true, nil
}
