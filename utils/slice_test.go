package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueSlice(t *testing.T) {
	assert.Equal(t, []string{"a"}, UniqueSlice([]string{"a"}))
	assert.Equal(t, []string{"a"}, UniqueSlice([]string{"a", "a"}))
	assert.Equal(t, []string{"a", "b"}, UniqueSlice([]string{"a", "a", "b"}))
	assert.Equal(t, []string{"a", "b"}, UniqueSlice([]string{"a", "b", "b"}))
	assert.Equal(t, []string{"a", "b", "c"}, UniqueSlice([]string{"a", "b", "b", "c", "c", "c"}))
}

func TestCloneMap(t *testing.T) {
	m := map[string]int{"x": 1, "y": 2}
	c := CloneMap(m)
	c["x"] = 9
	assert.Equal(t, 1, m["x"])
	assert.Equal(t, 9, c["x"])
	assert.Equal(t, 2, c["y"])
}
