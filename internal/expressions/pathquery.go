package expressions

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mvidal/trellis/pkg/schema"
)

// PathQuery is the in-house jq-like expression language used by transform
// handlers. An expression is one or more pipe-separated stages; each stage is
// either a builtin (to_entries, keys, length) or a dotted path like ".a.b[0]".
//
// Indexing a too-short sequence yields nil rather than an error; addressing a
// missing field is fatal. This asymmetry with the reference resolver's strict
// out-of-range rule is deliberate.
type PathQuery struct{}

// NewPathQuery creates the path query engine. It is stateless and safe for
// concurrent use.
func NewPathQuery() *PathQuery {
	return &PathQuery{}
}

// Name returns the engine identifier.
func (e *PathQuery) Name() string {
	return "pathquery"
}

// Evaluate runs the expression against data, feeding each stage's output to
// the next, left to right.
func (e *PathQuery) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, schema.NewError(schema.ErrCodeEval, "empty expression")
	}

	current := data
	for _, stage := range strings.Split(expression, "|") {
		stage = strings.TrimSpace(stage)

		var err error
		switch {
		case stage == "to_entries":
			current, err = toEntries(current)
		case stage == "keys":
			current, err = objectKeys(current)
		case stage == "length":
			current, err = length(current)
		case strings.HasPrefix(stage, "."):
			current, err = evalPath(stage[1:], current)
		default:
			err = schema.NewErrorf(schema.ErrCodeEval, "unknown stage %q", stage)
		}
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// toEntries converts an object into an ordered sequence of {key, value} pairs.
func toEntries(v any) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeEval, "to_entries requires an object, got %T", v)
	}
	entries := make([]any, 0, len(obj))
	for _, k := range sortedKeys(obj) {
		entries = append(entries, map[string]any{"key": k, "value": obj[k]})
	}
	return entries, nil
}

// objectKeys returns an object's keys as a sorted sequence.
func objectKeys(v any) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeEval, "keys requires an object, got %T", v)
	}
	keys := make([]any, 0, len(obj))
	for _, k := range sortedKeys(obj) {
		keys = append(keys, k)
	}
	return keys, nil
}

// length counts sequence elements, object keys, or string characters.
func length(v any) (any, error) {
	switch val := v.(type) {
	case []any:
		return len(val), nil
	case map[string]any:
		return len(val), nil
	case string:
		return utf8.RuneCountInString(val), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeEval, "length not defined for %T", v)
	}
}

// evalPath walks a dotted path. An empty path returns the input unchanged.
func evalPath(path string, v any) (any, error) {
	if path == "" {
		return v, nil
	}

	current := v
	for _, token := range strings.Split(path, ".") {
		field, index, err := splitIndex(token)
		if err != nil {
			return nil, err
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeEval, "cannot address field %q of %T", field, current)
		}
		current, ok = obj[field]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeEval, "field %q not found", field)
		}

		if index >= 0 {
			seq, ok := current.([]any)
			if !ok || index >= len(seq) {
				current = nil
				continue
			}
			current = seq[index]
		}
	}
	return current, nil
}

// splitIndex separates a path token into a field name and an optional trailing
// bracketed index. Returns index -1 when absent.
func splitIndex(token string) (string, int, error) {
	open := strings.IndexByte(token, '[')
	if open == -1 {
		if token == "" {
			return "", -1, schema.NewError(schema.ErrCodeEval, "empty path token")
		}
		return token, -1, nil
	}
	if open == 0 || !strings.HasSuffix(token, "]") {
		return "", -1, schema.NewErrorf(schema.ErrCodeEval, "malformed token %q", token)
	}
	n, err := strconv.Atoi(token[open+1 : len(token)-1])
	if err != nil || n < 0 {
		return "", -1, schema.NewErrorf(schema.ErrCodeEval, "malformed index in token %q", token)
	}
	return token[:open], n, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Engine = (*PathQuery)(nil)
