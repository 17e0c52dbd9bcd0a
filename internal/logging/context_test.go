package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetachContext_SurvivesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	detached := DetachContext(parent)

	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
}

func TestDetachContextWithTimeout_OwnDeadline(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	detached, cancel := DetachContextWithTimeout(parent, 50*time.Millisecond)
	defer cancel()

	parentCancel()
	assert.NoError(t, detached.Err(), "parent cancellation must not propagate")

	_, ok := detached.Deadline()
	assert.True(t, ok)

	<-detached.Done()
	assert.ErrorIs(t, detached.Err(), context.DeadlineExceeded)
}

func TestDetachContext_PreservesValues(t *testing.T) {
	type key string
	parent := context.WithValue(context.Background(), key("request"), "abc")

	assert.Equal(t, "abc", DetachContext(parent).Value(key("request")))
}
