package realtime

import (
	"testing"

	"github.com/cuemby/cave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("users")
	defer h.Unsubscribe("users", sub)

	h.Publish(types.ChangeEvent{Table: "users", Kind: types.ChangeInsert})

	event, laggedErr, ok := sub.Recv()
	require.True(t, ok)
	require.NoError(t, laggedErr)
	assert.Equal(t, types.ChangeInsert, event.Kind)
}

func TestPublishNeverBlocksAndMarksLag(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("users")
	defer h.Unsubscribe("users", sub)

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(types.ChangeEvent{Table: "users", Kind: types.ChangeInsert})
	}

	sawLag := false
	for i := 0; i < subscriberBuffer; i++ {
		_, laggedErr, ok := sub.Recv()
		require.True(t, ok)
		if laggedErr == ErrLagged {
			sawLag = true
			break
		}
	}
	assert.True(t, sawLag)
}
