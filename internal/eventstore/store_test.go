package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noetl/noetl/internal/model"
)

func TestValidEventType(t *testing.T) {
	assert.True(t, validEventType(model.EventStepStarted))
	assert.True(t, validEventType(model.EventLoopIteration))
	assert.False(t, validEventType(model.EventType("bogus.type")))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, validStatus(model.StatusRunning))
	assert.False(t, validStatus(model.Status("bogus")))
}

func TestDedupedEventType(t *testing.T) {
	scoped, byIndex := dedupedEventType(model.EventStepStarted)
	assert.True(t, scoped)
	assert.False(t, byIndex)

	scoped, byIndex = dedupedEventType(model.EventLoopIteration)
	assert.True(t, scoped)
	assert.True(t, byIndex)

	scoped, byIndex = dedupedEventType(model.EventExecutionCompleted)
	assert.True(t, scoped)
	assert.False(t, byIndex)

	scoped, _ = dedupedEventType(model.EventStepDone)
	assert.False(t, scoped)
}
