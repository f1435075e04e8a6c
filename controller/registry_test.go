package controller

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
	"github.com/stretchr/testify/require"
)

func TestRegistryOneControllerPerSessionWhileRefCountPositive(t *testing.T) {
	reg := NewRegistry()
	sessionID := uuid.New()
	built := 0
	factory := func(ctx context.Context) (*Controller, error) {
		built++
		ctrl, _, _ := newTestController(t, models.ModeSingle, 0)
		return ctrl, nil
	}

	require.False(t, reg.Exists(sessionID))

	first, err := reg.GetOrCreate(context.Background(), sessionID, factory)
	require.NoError(t, err)
	require.True(t, reg.Exists(sessionID))
	require.Equal(t, 1, built)

	second, err := reg.GetOrCreate(context.Background(), sessionID, factory)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, built, "second GetOrCreate must not invoke the factory again")

	reg.Release(sessionID)
	require.True(t, reg.Exists(sessionID), "refcount still 1 after one release of two acquisitions")

	reg.Release(sessionID)
	require.False(t, reg.Exists(sessionID), "refcount reached zero, entry removed")
}
