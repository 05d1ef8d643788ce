package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgefleet/bridgefleet/pkg/services/commands"
	"github.com/bridgefleet/bridgefleet/pkg/util/testutil"
)

func TestEnqueue_RejectsUnknownCommand(t *testing.T) {
	env := testutil.NewTestEnv(t)

	_, err := env.CommandService.Enqueue(context.Background(), "bridge-01", "reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestEnqueueThenDeliver(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()

	rec, err := env.CommandService.Enqueue(ctx, "bridge-01", "restart")
	require.NoError(t, err)
	assert.Equal(t, commands.DispatchPending, rec.Status)

	pending, ok, err := env.CommandService.NextForDevice(ctx, "bridge-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "restart", pending.Command)
	assert.Equal(t, rec.ID, pending.ID)

	// The slot is consumed: a second poll sees nothing.
	_, ok, err = env.CommandService.NextForDevice(ctx, "bridge-01")
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := env.CommandService.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, commands.DispatchDelivered, history[0].Status)
	assert.NotNil(t, history[0].DeliveredAt)
}

func TestEnqueue_ReplacesPendingCommand(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()

	first, err := env.CommandService.Enqueue(ctx, "bridge-01", "stop")
	require.NoError(t, err)
	_, err = env.CommandService.Enqueue(ctx, "bridge-01", "restart")
	require.NoError(t, err)

	pending, ok, err := env.CommandService.NextForDevice(ctx, "bridge-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "restart", pending.Command)

	history, err := env.CommandService.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, rec := range history {
		if rec.ID == first.ID {
			assert.Equal(t, commands.DispatchReplaced, rec.Status)
		} else {
			assert.Equal(t, commands.DispatchDelivered, rec.Status)
		}
	}
}

func TestPoll_TracksDevices(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()

	for range 3 {
		_, _, err := env.CommandService.NextForDevice(ctx, "bridge-01")
		require.NoError(t, err)
	}

	devices, err := env.CommandService.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "bridge-01", devices[0].DeviceID)
	assert.Equal(t, int64(3), devices[0].PollCount)
	assert.False(t, devices[0].FirstSeen.IsZero())
}

func TestDevices_AttachesPendingCommand(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()

	// Two known devices, only one with a command waiting.
	_, _, err := env.CommandService.NextForDevice(ctx, "bridge-01")
	require.NoError(t, err)
	_, _, err = env.CommandService.NextForDevice(ctx, "bridge-02")
	require.NoError(t, err)
	rec, err := env.CommandService.Enqueue(ctx, "bridge-02", "stop")
	require.NoError(t, err)

	devices, err := env.CommandService.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	byID := map[string]commands.DeviceStatus{}
	for _, d := range devices {
		byID[d.DeviceID] = d
	}
	assert.Nil(t, byID["bridge-01"].Pending)
	require.NotNil(t, byID["bridge-02"].Pending)
	assert.Equal(t, rec.ID, byID["bridge-02"].Pending.ID)
	assert.Equal(t, "stop", byID["bridge-02"].Pending.Command)
}

func TestPollEndpoint_NoContent(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp, err := http.Get(env.BaseURL + "/api/v1alpha1/commands/poll?deviceId=bridge-01")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPollEndpoint_MissingDeviceID(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp, err := http.Get(env.BaseURL + "/api/v1alpha1/commands/poll")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPollEndpoint_DeliversEnqueuedCommand(t *testing.T) {
	env := testutil.NewTestEnv(t)

	body, _ := json.Marshal(map[string]string{
		"deviceId": "bridge-01",
		"command":  "update",
	})
	resp, err := http.Post(
		env.BaseURL+"/api/v1alpha1/dashboard/commands",
		"application/json",
		bytes.NewReader(body),
	)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.BaseURL + "/api/v1alpha1/commands/poll?deviceId=bridge-01")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pr struct {
		HasCommand bool   `json:"hasCommand"`
		Command    string `json:"command"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pr))
	assert.True(t, pr.HasCommand)
	assert.Equal(t, "update", pr.Command)
}
