package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	c := NewCounters()
	assert.Zero(t, c.Count(CategoryMessages))
	assert.Zero(t, c.Total())

	c.Replace(map[string]int{CategoryMessages: 3, CategoryCourses: 1})
	assert.Equal(t, 3, c.Count(CategoryMessages))
	assert.Equal(t, 1, c.Count(CategoryCourses))
	assert.Equal(t, 4, c.Total())

	c.Increment(CategoryMessages)
	assert.Equal(t, 4, c.Count(CategoryMessages))

	c.Reset(CategoryMessages)
	assert.Zero(t, c.Count(CategoryMessages))
	assert.Equal(t, 1, c.Total())

	c.Increment(CategorySystem)
	c.ResetAll()
	assert.Zero(t, c.Total())
	assert.Zero(t, c.Count(CategorySystem))
}

func TestReplaceCopiesInput(t *testing.T) {
	c := NewCounters()
	in := map[string]int{CategoryEvaluations: 2}
	c.Replace(in)
	in[CategoryEvaluations] = 99
	assert.Equal(t, 2, c.Count(CategoryEvaluations))
}
