package memory

import (
	"context"
	"testing"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRunStorage(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRunStorage()

	run := &domain.SimulationRun{
		OrderID: "7",
		State:   domain.RunStateRunning,
		Events: []domain.WaypointEvent{
			{Position: domain.NewGeoPoint(0, 0), TargetTimestamp: 1, CumulativeProgress: 0},
			{Position: domain.NewGeoPoint(0, 1), TargetTimestamp: 2, CumulativeProgress: 1},
		},
	}
	require.NoError(t, store.Save(ctx, run))

	// The store keeps its own copy.
	run.Events[0].CumulativeProgress = 0.5
	loaded, err := store.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 0.0, loaded.Events[0].CumulativeProgress)

	loaded.ReadCursor = 1
	again, err := store.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 0, again.ReadCursor)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.OrderID{"7"}, ids)

	require.NoError(t, store.Delete(ctx, "7"))
	_, err = store.Load(ctx, "7")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "7"))
}
