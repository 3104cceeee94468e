package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cleanbot/internal/config"
	"cleanbot/internal/device"
	"cleanbot/internal/feature"
)

const profileYAML = `
device:
  name: RoboKing Turbo+
  category: robotKing
enums:
  State:
    "0": STATE_POWER_OFF
    "1": STATE_INITIAL
    "5": STATE_WORKING
    "6": STATE_END
references:
  Error:
    ERROR_NOERROR:
      title: No Error
    ERROR_B001:
      title: Brush Stuck
controls:
  Config:
    - Wakeup
  Set:
    - Wakeup
`

type harness struct {
	session    *device.MockSession
	registry   *feature.Registry
	controller *device.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "device_profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0o644))

	logger := zap.NewNop()
	profile, err := config.LoadProfile(path, logger)
	require.NoError(t, err)

	session := device.NewMockSession()
	registry := feature.NewRegistry(logger)
	controller := device.NewController(session, profile, registry, logger)

	return &harness{session: session, registry: registry, controller: controller}
}

func (h *harness) feature(t *testing.T, name string) string {
	t.Helper()
	value, ok := h.registry.Get(name)
	require.True(t, ok, "feature %s not published", name)
	return value
}

func TestScenarioCompletedCycle(t *testing.T) {
	h := newHarness(t)
	h.session.QueuePayload(device.Payload{
		"State": map[string]any{"state": "STATE_END"},
		"Error": map[string]any{"error": "ERROR_NOERROR"},
	})

	status, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.True(t, status.IsOn())
	assert.True(t, status.IsRunCompleted())
	assert.False(t, status.IsError())

	// Features are published as a side effect of the poll.
	assert.Equal(t, "STATE_END", h.feature(t, device.FeatureRunState))
	assert.Equal(t, device.StateNone, h.feature(t, device.FeatureErrorMsg))
}

func TestScenarioErrorWhileCleaning(t *testing.T) {
	h := newHarness(t)
	h.session.QueuePayload(device.Payload{"State": "5", "Error": "ERROR_B001"})

	status, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.True(t, status.IsOn())
	assert.True(t, status.IsError())
	assert.Equal(t, "STATE_WORKING", h.feature(t, device.FeatureRunState))
	assert.Equal(t, "Brush Stuck", h.feature(t, device.FeatureErrorMsg))
}

func TestScenarioEmptyPollKeepsLastState(t *testing.T) {
	h := newHarness(t)
	h.session.QueuePayload(device.Payload{"State": "5"})

	first, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	// Gateway has nothing new: stored snapshot and features survive.
	second, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Same(t, first, h.controller.Status())
	assert.Equal(t, "STATE_WORKING", h.feature(t, device.FeatureRunState))
}

func TestScenarioWakeUp(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.controller.Standby())
	assert.False(t, h.controller.Status().IsOn())

	require.NoError(t, h.controller.WakeUp(context.Background()))

	commands := h.session.Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, "Config", commands[0].Group)
	assert.Equal(t, "Wakeup", commands[0].Command)
	assert.Nil(t, commands[0].Value)

	// The snapshot flips to on before any poll confirms it.
	assert.False(t, h.controller.Standby())
	assert.True(t, h.controller.Status().IsOn())
	assert.Equal(t, "STATE_INITIAL", h.controller.Status().RunState())

	err := h.controller.WakeUp(context.Background())
	require.ErrorIs(t, err, device.ErrInvalidDeviceStatus)
	assert.Len(t, h.session.Commands(), 1, "no second dispatch")
}

func TestScenarioPowerOffSuppressesError(t *testing.T) {
	h := newHarness(t)
	h.session.QueuePayload(device.Payload{"State": "STATE_POWER_OFF", "Error": "ERROR_B001"})

	status, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.False(t, status.IsOn())
	assert.False(t, status.IsError())
	assert.Equal(t, device.StateNone, h.feature(t, device.FeatureRunState))
	assert.Equal(t, device.StateNone, h.feature(t, device.FeatureErrorMsg))
}

func TestScenarioResetAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	h.session.QueuePayload(device.Payload{"State": "5"})

	_, err := h.controller.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, h.controller.Status().IsOn())

	status := h.controller.ResetStatus()
	assert.False(t, status.IsOn())
	assert.Equal(t, device.StateNone, status.RunState())
}
