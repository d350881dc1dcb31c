package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{"a": 1.0}, Parse(`{"a":1}`))
	assert.Equal(t, []any{1.0, "x"}, Parse(`[1,"x"]`))
	assert.Nil(t, Parse("null"))
	assert.Equal(t, "quoted", Parse(`"quoted"`))
	assert.Equal(t, "keepalive", Parse("keepalive"))
	assert.Equal(t, "", Parse(""))
	assert.Equal(t, `{"a":`, Parse(`{"a":`))
}

func TestIsDoneLikeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   string
		payload any
		want    bool
	}{
		{"delta event", "message.delta", map[string]any{}, false},
		{"done event", "stream.done", map[string]any{}, true},
		{"completed flag", "x", map[string]any{"completed": true}, true},
		{"done flag", "", map[string]any{"done": true}, true},
		{"complete event uppercase", "Generation.COMPLETED", nil, true},
		{"false flags", "x", map[string]any{"done": false, "completed": 0.0}, false},
		{"truthy string flag", "x", map[string]any{"done": "yes"}, true},
		{"status alone is not done", "x", map[string]any{"status": "done"}, false},
		{"nested done ignored", "x", map[string]any{"data": map[string]any{"done": true}}, false},
		{"non-object payload", "x", []any{map[string]any{"done": true}}, false},
		{"null payload", "", nil, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsDoneLikeEvent(tc.event, tc.payload), tc.name)
	}
}
