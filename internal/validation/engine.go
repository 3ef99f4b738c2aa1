// Package validation evaluates the conditional rule catalog against
// device payloads. Violations are collected and returned, never thrown;
// the error channel carries only hard failures (dangling type reference,
// catalog/payload mismatch).
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"employee-manager/internal/api"
	"employee-manager/internal/catalog"
)

// ErrSchema marks a catalog/payload mismatch. It is a server-side defect:
// the boundary surfaces it as a generic fault, never as a user-facing
// validation message.
var ErrSchema = errors.New("catalog and payload shapes disagree")

// TypeResolver is the storage collaborator that maps a device type id to
// its name. A missing id is reported with the store's not-found sentinel.
type TypeResolver interface {
	DeviceTypeName(ctx context.Context, id int64) (string, error)
}

type Engine struct {
	catalog *catalog.Catalog
	types   TypeResolver
}

func NewEngine(cat *catalog.Catalog, types TypeResolver) *Engine {
	return &Engine{catalog: cat, types: types}
}

// Validate resolves the payload's device type and, when a catalog entry
// applies, evaluates every rule in order, accumulating all violations.
// An empty slice means the payload is accepted by this engine.
func (e *Engine) Validate(ctx context.Context, typeID int64, payload *api.DeviceRequest) ([]string, error) {
	typeName, err := e.types.DeviceTypeName(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("resolve device type %d: %w", typeID, err)
	}

	entry := e.catalog.Entry(typeName)
	if entry == nil {
		// No catalog entry means no conditional constraints, not reject-all.
		return nil, nil
	}

	applies, err := entry.Applies(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if !applies {
		return nil, nil
	}

	var violations []string
	for _, rule := range entry.Rules {
		// Every rule runs; a caller must see all problems in one pass.
		if msg := applyRule(rule, payload.AdditionalProperties); msg != "" {
			violations = append(violations, msg)
		}
	}
	return violations, nil
}

// applyRule checks one property-bag key against a rule and returns a
// violation message, or "" when the rule passes.
func applyRule(rule *catalog.Rule, bag json.RawMessage) string {
	if len(bag) == 0 || string(bag) == "null" {
		return "AdditionalProperties is null."
	}

	var props map[string]any
	if err := json.Unmarshal(bag, &props); err != nil {
		return "AdditionalProperties is not a valid JSON object."
	}

	value, ok := props[rule.ParamName]
	if !ok {
		return fmt.Sprintf("Missing field: %s", rule.ParamName)
	}

	// Non-string values have no string form for regex purposes.
	fieldValue, _ := value.(string)

	if rule.Program != nil {
		if msg := applyExpr(rule, props, fieldValue); msg != "" {
			return msg
		}
	}

	if len(rule.Patterns) == 0 {
		return ""
	}

	if !rule.ListForm {
		if !rule.Patterns[0].MatchString(fieldValue) {
			return fmt.Sprintf("Field '%s' does not match regex rule.", rule.ParamName)
		}
		return ""
	}

	// List form is a disjunction: drafts accumulate per failing pattern
	// but are all discarded the moment any pattern matches.
	var drafts strings.Builder
	matched := false
	for _, re := range rule.Patterns {
		if re.MatchString(fieldValue) {
			matched = true
		} else {
			fmt.Fprintf(&drafts, "Field '%s' does not match regex rule.\n\t", rule.ParamName)
		}
	}
	if drafts.Len() == 0 || matched {
		return ""
	}
	return drafts.String()
}

// applyExpr evaluates a compiled expression rule against the bag. The
// expression sees the whole bag as "params" and the rule's own field as
// "value"; it must return true for the payload to pass.
func applyExpr(rule *catalog.Rule, props map[string]any, fieldValue string) string {
	env := map[string]any{
		"params": props,
		"value":  fieldValue,
	}
	result, err := expr.Run(rule.Program, env)
	if err != nil {
		return fmt.Sprintf("Field '%s' failed expression rule.", rule.ParamName)
	}
	if ok, _ := result.(bool); !ok {
		return fmt.Sprintf("Field '%s' does not satisfy expression rule.", rule.ParamName)
	}
	return ""
}
