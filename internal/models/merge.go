package models

// MergeMeta returns a new map holding a combined with b. Keys from b replace keys
// from a, except when both values are objects, in which case they are merged recursively.
// Nested objects are copied so the result shares no maps with its inputs.
func MergeMeta(a, b map[string]any) map[string]any {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = copyValue(v)
	}
	for k, v := range b {
		left, lok := out[k].(map[string]any)
		right, rok := v.(map[string]any)
		if lok && rok {
			out[k] = MergeMeta(left, right)
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return MergeMeta(t, nil)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
