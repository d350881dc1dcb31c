package stream

type visitAction int

const (
	descend visitAction = iota
	skipChildren
	stopWalk
)

// unbounded disables the depth limit of walk.
const unbounded = -1

// Depth limits bound the work done per chunk on pathological payloads.
const (
	thoughtSearchDepth   = 20
	integrationScanDepth = 8
	questionScanDepth    = 4
)

// walk visits root and its descendants depth-first. Object members are
// visited in sorted key order so results do not depend on map iteration.
// Nodes deeper than maxDepth are not visited.
func walk(root any, maxDepth int, visit func(node any, depth int) visitAction) {
	walkNode(root, 0, maxDepth, visit)
}

func walkNode(node any, depth, maxDepth int, visit func(any, int) visitAction) bool {
	if maxDepth != unbounded && depth > maxDepth {
		return true
	}
	switch visit(node, depth) {
	case stopWalk:
		return false
	case skipChildren:
		return true
	}
	switch n := node.(type) {
	case []any:
		for _, el := range n {
			if !walkNode(el, depth+1, maxDepth, visit) {
				return false
			}
		}
	case map[string]any:
		for _, k := range sortedKeys(n) {
			if !walkNode(n[k], depth+1, maxDepth, visit) {
				return false
			}
		}
	}
	return true
}

// findKeyedString returns the first string, in walk order, stored under one
// of keys and allowed by accept.
func findKeyedString(root any, keys []string, accept func(string) bool) (string, bool) {
	var found string
	var ok bool
	walk(root, unbounded, func(node any, _ int) visitAction {
		obj, isObj := node.(map[string]any)
		if !isObj {
			return descend
		}
		for _, k := range keys {
			s, isStr := obj[k].(string)
			if isStr && (accept == nil || accept(s)) {
				found, ok = s, true
				return stopWalk
			}
		}
		return descend
	})
	return found, ok
}

// collectObjects returns every object in walk order for which match is true.
// Matched objects are not searched further.
func collectObjects(root any, maxDepth int, match func(map[string]any) bool) []map[string]any {
	var out []map[string]any
	walk(root, maxDepth, func(node any, _ int) visitAction {
		obj, ok := node.(map[string]any)
		if !ok || !match(obj) {
			return descend
		}
		out = append(out, obj)
		return skipChildren
	})
	return out
}
