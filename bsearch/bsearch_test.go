package bsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFind(t *testing.T) {
	xs := []int{1, 3, 5, 7, 9}
	cmp := func(target int) func(int) int {
		return func(i int) int { return xs[i] - target }
	}

	i, found := Find(len(xs), cmp(5))
	assert.True(t, found)
	assert.Equal(t, 2, i)

	i, found = Find(len(xs), cmp(4))
	assert.False(t, found)
	assert.Equal(t, 2, i, "insertion point")

	i, found = Find(len(xs), cmp(10))
	assert.False(t, found)
	assert.Equal(t, 5, i)

	_, found = Find(0, cmp(1))
	assert.False(t, found)
}

func TestLowerBound(t *testing.T) {
	xs := []int{2, 4, 4, 4, 8}

	atLeast := func(target int) func(int) bool {
		return func(i int) bool { return xs[i] >= target }
	}

	assert.Equal(t, 1, LowerBound(len(xs), atLeast(3)))
	assert.Equal(t, 1, LowerBound(len(xs), atLeast(4)))
	assert.Equal(t, 4, LowerBound(len(xs), atLeast(5)))
	assert.Equal(t, 5, LowerBound(len(xs), atLeast(9)))
	assert.Equal(t, 0, LowerBound(0, atLeast(0)))
}
