package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/notify"
)

func TestQueue_EnqueueAndConsume(t *testing.T) {
	q := notify.NewQueue(4, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, lead.Notification{LeadID: "l1", AgencyID: "a1"}))
	require.NoError(t, q.Enqueue(ctx, lead.Notification{LeadID: "l2", AgencyID: "a2"}))
	assert.Equal(t, 2, q.Len())

	n := <-q.Events()
	assert.Equal(t, "l1", n.LeadID)
}

func TestQueue_FullDropsOldest(t *testing.T) {
	q := notify.NewQueue(2, nil)
	ctx := context.Background()

	for _, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, q.Enqueue(ctx, lead.Notification{LeadID: id}))
	}

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "l2", (<-q.Events()).LeadID)
	assert.Equal(t, "l3", (<-q.Events()).LeadID)
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := notify.NewQueue(0, nil)
	require.NoError(t, q.Enqueue(context.Background(), lead.Notification{LeadID: "l1"}))
	assert.Equal(t, 1, q.Len())
}
