package storage

import "rollback-guard/internal/domain"

// ValueToJSON converts a domain.Value into a plain Go value suitable
// for json.Marshal or a JSONB column, so evidence payloads and metric
// metadata round-trip through the durable stores without losing the
// tagged-union shape that keeps hashing stable.
func ValueToJSON(v domain.Value) interface{} {
	switch v.Kind() {
	case domain.ValueNull:
		return nil
	case domain.ValueBool:
		b, _ := v.AsBool()
		return b
	case domain.ValueNumber:
		n, _ := v.AsNumber()
		return n
	case domain.ValueString:
		s, _ := v.AsString()
		return s
	case domain.ValueSeq:
		seq, _ := v.AsSeq()
		out := make([]interface{}, len(seq))
		for i, e := range seq {
			out[i] = ValueToJSON(e)
		}
		return out
	case domain.ValueMap:
		m, _ := v.AsMap()
		out := make(map[string]interface{}, len(m))
		for k, e := range m {
			out[k] = ValueToJSON(e)
		}
		return out
	default:
		return nil
	}
}

// ValueMapToJSON converts an evidence/metric payload map into its
// JSON-ready form.
func ValueMapToJSON(m map[string]domain.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = ValueToJSON(v)
	}
	return out
}

// ValueFromJSON converts a value decoded by encoding/json (into
// interface{}) back into a domain.Value.
func ValueFromJSON(raw interface{}) domain.Value {
	switch t := raw.(type) {
	case nil:
		return domain.Null()
	case bool:
		return domain.Bool(t)
	case float64:
		return domain.Num(t)
	case string:
		return domain.Str(t)
	case []interface{}:
		seq := make([]domain.Value, len(t))
		for i, e := range t {
			seq[i] = ValueFromJSON(e)
		}
		return domain.Seq(seq...)
	case map[string]interface{}:
		m := make(map[string]domain.Value, len(t))
		for k, e := range t {
			m[k] = ValueFromJSON(e)
		}
		return domain.Map(m)
	default:
		return domain.Null()
	}
}

// ValueMapFromJSON is the inverse of ValueMapToJSON.
func ValueMapFromJSON(raw map[string]interface{}) map[string]domain.Value {
	out := make(map[string]domain.Value, len(raw))
	for k, v := range raw {
		out[k] = ValueFromJSON(v)
	}
	return out
}
