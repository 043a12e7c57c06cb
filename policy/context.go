package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EvaluationContext is the flat fact set an evaluation runs against, keyed by
// dotted field name ("applicant.cibilScore"). It is built per request and
// discarded afterwards.
type EvaluationContext map[string]string

// Lookup returns the value of field and whether it is present.
func (c EvaluationContext) Lookup(field string) (string, bool) {
	v, ok := c[field]
	return v, ok
}

// Fields returns the context keys in sorted order.
func (c EvaluationContext) Fields() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FlattenFacts converts a nested fact map into an EvaluationContext. Nested
// maps are joined with "." and nil values are dropped.
func FlattenFacts(facts map[string]any) EvaluationContext {
	ctx := make(EvaluationContext, len(facts))
	flattenInto(ctx, "", facts)
	return ctx
}

func flattenInto(ctx EvaluationContext, prefix string, facts map[string]any) {
	for k, v := range facts {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case nil:
			continue
		case map[string]any:
			flattenInto(ctx, key, val)
		case map[string]string:
			for sk, sv := range val {
				ctx[key+"."+sk] = sv
			}
		default:
			if s, ok := formatFact(val); ok {
				ctx[key] = s
			}
		}
	}
}

// formatFact renders a scalar fact as a context string.
func formatFact(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case decimal.Decimal:
		return val.String(), true
	case time.Time:
		return val.Format(time.RFC3339), true
	case []string:
		return strings.Join(val, ","), true
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := formatFact(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), true
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}
