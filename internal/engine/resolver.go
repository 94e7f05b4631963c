package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mvidal/trellis/pkg/schema"
)

// QueryPlaceholder is the token workflow authors embed in input templates to
// receive the caller's query string.
const QueryPlaceholder = "{{query}}"

// refKey marks a single-key object as a reference into a prior node's output.
const refKey = "$ref"

// ResolveInput produces a fully concrete input value for a node from its raw
// template, the run's query string, and the outputs accumulated so far.
//
// Resolution runs in two fixed phases. Phase one substitutes every occurrence
// of {{query}} textually over the JSON-serialized template; a query string
// containing JSON metacharacters can therefore corrupt the document, which
// surfaces as a resolution error when the result no longer parses. Phase two
// walks the template structurally and replaces $ref objects with values read
// from the execution context.
func ResolveInput(tmpl map[string]any, query string, ectx schema.ExecutionContext) (map[string]any, error) {
	if tmpl == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(tmpl)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResolution, "serialize input template: %s", err.Error()).WithCause(err)
	}

	substituted := strings.ReplaceAll(string(raw), QueryPlaceholder, query)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(substituted), &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"query substitution corrupted input template: %s", err.Error()).WithCause(err)
	}

	resolved, err := resolveValue(parsed, ectx)
	if err != nil {
		return nil, err
	}

	// The template itself may be a single $ref object, so the resolved value
	// is not necessarily a map.
	out, ok := resolved.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"top-level template must resolve to an object, got %T", resolved)
	}
	return out, nil
}

// resolveValue recurses into maps and slices so $ref objects may appear at any
// depth. Scalars pass through unchanged.
func resolveValue(v any, ectx schema.ExecutionContext) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if path, ok := refPath(val); ok {
			return resolveRef(path, ectx)
		}
		out := make(map[string]any, len(val))
		for k, member := range val {
			resolved, err := resolveValue(member, ectx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, member := range val {
			resolved, err := resolveValue(member, ectx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}

// refPath recognizes a reference object: a single-key map whose sole key is
// $ref holding a string path.
func refPath(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	raw, ok := m[refKey]
	if !ok {
		return "", false
	}
	path, ok := raw.(string)
	return path, ok
}

// resolveRef walks a path of the form $.nodes.<id>.output.<field>[.<field|field[idx]>...]
// against the execution context.
func resolveRef(path string, ectx schema.ExecutionContext) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) < 5 || parts[0] != "$" || parts[1] != "nodes" || parts[3] != "output" {
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"malformed reference %q: expected $.nodes.<id>.output.<field>...", path)
	}

	nodeID := parts[2]
	output, ok := ectx[nodeID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeResolution,
			"reference %q names node %q which has produced no output", path, nodeID)
	}

	var current any = map[string]any(output)
	for _, token := range parts[4:] {
		field, index, err := parseToken(token, path)
		if err != nil {
			return nil, err
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"reference %q: cannot descend into non-object at %q", path, field)
		}
		current, ok = obj[field]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeResolution,
				"reference %q: field %q not found", path, field)
		}

		if index >= 0 {
			seq, ok := current.([]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeResolution,
					"reference %q: index [%d] applied to non-sequence %q", path, index, field)
			}
			if index >= len(seq) {
				return nil, schema.NewErrorf(schema.ErrCodeResolution,
					"reference %q: index [%d] out of range for %q (length %d)", path, index, field, len(seq))
			}
			current = seq[index]
		}
	}

	return current, nil
}

// parseToken splits a path token into a field name and an optional trailing
// bracketed index (e.g. "items[2]"). Returns index -1 when absent.
func parseToken(token, path string) (field string, index int, err error) {
	open := strings.IndexByte(token, '[')
	if open == -1 {
		if token == "" {
			return "", -1, schema.NewErrorf(schema.ErrCodeResolution, "reference %q: empty path token", path)
		}
		return token, -1, nil
	}

	if open == 0 || !strings.HasSuffix(token, "]") {
		return "", -1, schema.NewErrorf(schema.ErrCodeResolution, "reference %q: malformed token %q", path, token)
	}

	n, convErr := strconv.Atoi(token[open+1 : len(token)-1])
	if convErr != nil || n < 0 {
		return "", -1, schema.NewErrorf(schema.ErrCodeResolution, "reference %q: malformed index in token %q", path, token)
	}
	return token[:open], n, nil
}
