package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goforbroke1006/stagechain"
)

func TestSimulatedWork(t *testing.T) {
	req, err := stagechain.NewStageRequest(stagechain.First, "001", nil)
	require.NoError(t, err)

	assert.NoError(t, SimulatedWork(time.Millisecond, nil)(context.Background(), req))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SimulatedWork(time.Hour, nil)(ctx, req), context.Canceled)
}
