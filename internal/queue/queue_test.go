package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoffDelay(base, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 2))
}

func TestBackoffDelayCapped(t *testing.T) {
	d := backoffDelay(time.Second, 20)
	assert.Equal(t, 5*time.Minute, d)
}
