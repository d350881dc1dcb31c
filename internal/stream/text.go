package stream

// FindThought recovers the model's "thinking" text. Each object is checked
// for a thought array, then a thinking string, then a reasoning string,
// before its children are searched depth-first.
//
// The producer appends successively more complete versions of the same
// thought, so the last element of a thought array is the one returned.
func FindThought(payload any) (string, bool) {
	var found string
	var ok bool
	walk(payload, thoughtSearchDepth, func(node any, _ int) visitAction {
		obj, isObj := node.(map[string]any)
		if !isObj {
			return descend
		}
		if s, hit := thoughtIn(obj); hit {
			found, ok = s, true
			return stopWalk
		}
		return descend
	})
	return found, ok
}

func thoughtIn(obj map[string]any) (string, bool) {
	if items, ok := obj["thought"].([]any); ok && len(items) > 0 {
		if s, ok := thoughtText(items[len(items)-1]); ok {
			return s, true
		}
	}
	for _, key := range []string{"thinking", "reasoning"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func thoughtText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		return firstString(t, []fieldPath{path("text"), path("content")}, nonEmpty)
	}
	return "", false
}

var contentFields = []fieldPath{path("content"), path("text"), path("delta")}

// ExtractContentText recovers the text fragment a chunk appends to the
// visible transcript. String payloads are returned as they are. Objects are
// checked for content, text and delta strings, and finally for the compact
// patch form delta = [pathArray, ...], whose path array ends in the text.
func ExtractContentText(payload any) (string, bool) {
	if s, ok := payload.(string); ok {
		return s, true
	}
	obj, ok := asObject(payload)
	if !ok {
		return "", false
	}
	if s, ok := firstString(obj, contentFields, nil); ok {
		return s, true
	}
	return decodeDeltaPatch(obj["delta"])
}

// decodeDeltaPatch reads [[...positions, "text"], ...metadata]. Everything
// but the trailing string of the first element is positional metadata.
func decodeDeltaPatch(v any) (string, bool) {
	patch, ok := v.([]any)
	if !ok || len(patch) == 0 {
		return "", false
	}
	head, ok := patch[0].([]any)
	if !ok || len(head) == 0 {
		return "", false
	}
	s, ok := head[len(head)-1].(string)
	return s, ok
}
