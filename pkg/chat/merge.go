package chat

// MergeStructuredData combines an incoming structured payload with what a
// message already holds under the same key. Arrays concatenate, objects take a
// shallow union where incoming keys win, anything else is replaced. The result
// never aliases incoming or existing containers.
func MergeStructuredData(existing any, exists bool, incoming any) any {
	if !exists || existing == nil {
		return shallowCopy(incoming)
	}

	switch cur := existing.(type) {
	case []any:
		if next, ok := incoming.([]any); ok {
			out := make([]any, 0, len(cur)+len(next))
			out = append(out, cur...)
			return append(out, next...)
		}
	case map[string]any:
		if next, ok := incoming.(map[string]any); ok {
			out := make(map[string]any, len(cur)+len(next))
			for k, v := range cur {
				out[k] = v
			}
			for k, v := range next {
				out[k] = v
			}
			return out
		}
	}
	return shallowCopy(incoming)
}

func shallowCopy(v any) any {
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	default:
		return v
	}
}
