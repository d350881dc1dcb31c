package session

import "phobos.org.uk/sajtmaskin/internal/stream"

// cloneValue deep-copies a decoded JSON value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}

func cloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func clonePart(p stream.Part) stream.Part {
	p.Input = cloneValue(p.Input)
	p.Output = cloneValue(p.Output)
	p.Approval = cloneValue(p.Approval)
	p.Data = cloneObject(p.Data)
	return p
}
