package vectordb

import "time"

// FilterBuilder assembles a Qdrant filter from must clauses.
type FilterBuilder struct {
	must []map[string]interface{}
}

// NewFilter starts an empty filter.
func NewFilter() *FilterBuilder {
	return &FilterBuilder{}
}

// Match adds an exact-match clause on a payload key.
func (f *FilterBuilder) Match(key string, value interface{}) *FilterBuilder {
	f.must = append(f.must, map[string]interface{}{
		"key":   key,
		"match": map[string]interface{}{"value": value},
	})
	return f
}

// MatchAny adds a clause matching any of the given values.
func (f *FilterBuilder) MatchAny(key string, values []string) *FilterBuilder {
	anyVals := make([]interface{}, len(values))
	for i, v := range values {
		anyVals[i] = v
	}
	f.must = append(f.must, map[string]interface{}{
		"key":   key,
		"match": map[string]interface{}{"any": anyVals},
	})
	return f
}

// TimeRange adds a timestamp range clause. Nil bounds are open.
func (f *FilterBuilder) TimeRange(key string, since, until *time.Time) *FilterBuilder {
	if since == nil && until == nil {
		return f
	}
	rng := map[string]interface{}{}
	if since != nil {
		rng["gte"] = since.UTC().Format(time.RFC3339)
	}
	if until != nil {
		rng["lte"] = until.UTC().Format(time.RFC3339)
	}
	f.must = append(f.must, map[string]interface{}{
		"key":   key,
		"range": rng,
	})
	return f
}

// Build returns the filter map, or nil when no clauses were added.
func (f *FilterBuilder) Build() map[string]interface{} {
	if len(f.must) == 0 {
		return nil
	}
	return map[string]interface{}{"must": f.must}
}
