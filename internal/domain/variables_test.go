package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariableSet_SetGetHasDelete(t *testing.T) {
	vs := NewVariableSet()
	assert.False(t, vs.Has("x"))

	vs.Set("x", 42)
	v, ok := vs.Get("x")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.True(t, vs.Has("x"))

	vs.Delete("x")
	assert.False(t, vs.Has("x"))
}

func TestVariableSet_CloneIsIndependent(t *testing.T) {
	vs := NewVariableSetFromMap(map[string]any{"a": 1})
	clone := vs.Clone()
	clone.Set("a", 2)
	clone.Set("b", 3)

	v, _ := vs.Get("a")
	assert.Equal(t, 1, v)
	assert.False(t, vs.Has("b"))

	v, _ = clone.Get("a")
	assert.Equal(t, 2, v)
}

func TestVariableSet_MergeOverwritesOnConflict(t *testing.T) {
	vs := NewVariableSetFromMap(map[string]any{"a": 1, "b": 2})
	other := NewVariableSetFromMap(map[string]any{"b": 20, "c": 30})

	vs.Merge(other)

	a, _ := vs.Get("a")
	b, _ := vs.Get("b")
	c, _ := vs.Get("c")
	assert.Equal(t, 1, a)
	assert.Equal(t, 20, b)
	assert.Equal(t, 30, c)
	assert.Equal(t, 3, vs.Count())
}

func TestVariableSet_AllReturnsIndependentCopy(t *testing.T) {
	vs := NewVariableSetFromMap(map[string]any{"a": 1})
	m := vs.All()
	m["a"] = 999

	v, _ := vs.Get("a")
	assert.Equal(t, 1, v)
}
