package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/optical.position/internal/fusion"
)

func ids(cs []fusion.Correction) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Recent())

	h.Publish(fusion.Correction{ID: "a"})
	h.Publish(fusion.Correction{ID: "b"})
	assert.Equal(t, []string{"a", "b"}, ids(h.Recent()))

	h.Publish(fusion.Correction{ID: "c"})
	h.Publish(fusion.Correction{ID: "d"})
	h.Publish(fusion.Correction{ID: "e"})
	assert.Equal(t, []string{"c", "d", "e"}, ids(h.Recent()))
}

func TestNewHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	assert.Len(t, h.buf, DefaultHistorySize)
}
