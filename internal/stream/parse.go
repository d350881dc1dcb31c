package stream

import (
	"encoding/json"
	"strings"
)

// Parse decodes a raw chunk as JSON. Chunks that are not valid JSON, such as
// keepalive lines or truncated fragments, are returned unchanged as a string.
func Parse(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// IsDoneLikeEvent reports whether a chunk marks the end of the stream: the
// event name mentions done/complete, or the payload has a truthy done or
// completed field. Nothing else counts, since a stream wrongly marked done
// loses output.
func IsDoneLikeEvent(eventName string, payload any) bool {
	name := strings.ToLower(eventName)
	if strings.Contains(name, "done") || strings.Contains(name, "complete") {
		return true
	}
	obj, ok := asObject(payload)
	if !ok {
		return false
	}
	return truthy(obj["done"]) || truthy(obj["completed"])
}
