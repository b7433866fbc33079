package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/config"
	"github.com/mmeshcher/uniform-points/internal/model"
)

func TestNewWithoutExternalServices(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{TicketRate: 30000, Timezone: "UTC"}

	a, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	store, err := a.Service.CreateStore(ctx, model.Actor{ID: 1, Role: model.RoleStaff}, "Склад")
	require.NoError(t, err)
	assert.Positive(t, store.ID)

	assert.NoError(t, a.Close(ctx))
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New(context.Background(), &config.Config{TicketRate: 30000, Timezone: "Nowhere/City"}, zap.NewNop())
	assert.Error(t, err)
}
