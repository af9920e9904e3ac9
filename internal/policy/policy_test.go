package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/types"
)

func testConfig(windows ...config.AlertWindow) config.Config {
	cfg := config.Default()
	cfg.Monitoring.AlertOnStatusChange = true
	cfg.Monitoring.AlertOnImageUpdate = true
	cfg.AlertSchedule = windows
	return cfg
}

func statusEvent(namespace, name, from, to string) types.ChangeEvent {
	return types.ChangeEvent{
		Kind: types.KindPod, Namespace: namespace, Name: name,
		Type: types.ChangeStatus, OldValue: from, NewValue: to,
		OccurredAt: time.Now(),
	}
}

// at builds a wall-clock time on an arbitrary day.
func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
}

func TestEvaluate_FiresInsideWindow(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "08:00", End: "18:00", Levels: []string{"warning"},
	})

	// Running is not in the critical status set, so this is a warning.
	alert, fire := gate.Evaluate(statusEvent("default", "api", "Pending", "Running"), cfg, at(10, 0))
	require.NotNil(t, alert)
	assert.True(t, fire)
	assert.Equal(t, types.SeverityWarning, alert.Level)
	assert.Equal(t, "api", alert.Name)
}

func TestEvaluate_OutsideWindowStillRecorded(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "08:00", End: "18:00", Levels: []string{"warning"},
	})

	alert, fire := gate.Evaluate(statusEvent("default", "api", "Pending", "Running"), cfg, at(20, 0))
	require.NotNil(t, alert, "alert must be recorded for audit even when gated")
	assert.False(t, fire)
}

func TestEvaluate_WindowBoundariesInclusive(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "08:00", End: "18:00", Levels: []string{"warning"},
	})

	_, fireAtStart := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(8, 0))
	assert.True(t, fireAtStart)

	_, fireAtEnd := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(18, 0))
	assert.True(t, fireAtEnd)

	_, fireBefore := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(7, 59))
	assert.False(t, fireBefore)
}

func TestEvaluate_WindowUsesClockOfGivenLocation(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "08:00", End: "18:00", Levels: []string{"warning"},
	})

	// 09:30 on an operator's UTC+11 clock is 22:30 UTC. The schedule is
	// written in the operator's wall-clock time, so it must fire.
	zone := time.FixedZone("UTC+11", 11*3600)
	morning := time.Date(2025, 6, 2, 9, 30, 0, 0, zone)

	_, fire := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, morning)
	assert.True(t, fire)

	_, fireUTC := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, morning.UTC())
	assert.False(t, fireUTC, "the same instant read as UTC falls outside the window")
}

func TestEvaluate_LevelFilter(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "00:00", End: "23:59", Levels: []string{"critical"},
	})

	// Warning-level event does not match a critical-only window.
	_, fire := gate.Evaluate(statusEvent("default", "api", "Pending", "Running"), cfg, at(10, 0))
	assert.False(t, fire)

	// Critical transition does.
	_, fire = gate.Evaluate(statusEvent("default", "api", "Running", "CrashLoopBackOff"), cfg, at(10, 0))
	assert.True(t, fire)
}

func TestEvaluate_NamespaceFilter(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "00:00", End: "23:59", Levels: []string{"warning"}, Namespaces: []string{"prod"},
	})

	_, fireProd := gate.Evaluate(statusEvent("prod", "api", "a", "b"), cfg, at(10, 0))
	assert.True(t, fireProd)

	_, fireStaging := gate.Evaluate(statusEvent("staging", "api", "a", "b"), cfg, at(10, 0))
	assert.False(t, fireStaging)
}

func TestEvaluate_EmptyNamespaceListMatchesAll(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "00:00", End: "23:59", Levels: []string{"warning"},
	})

	_, fire := gate.Evaluate(statusEvent("anything", "api", "a", "b"), cfg, at(12, 0))
	assert.True(t, fire)
}

func TestEvaluate_FailOpenOnBrokenWindow(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(config.AlertWindow{
		Start: "not-a-time", End: "18:00", Levels: []string{"warning"},
	})

	_, fire := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(3, 0))
	assert.True(t, fire, "policy evaluation errors must fail open")
}

func TestEvaluate_DisabledChangeTypes(t *testing.T) {
	gate := NewGate()

	cfg := testConfig(config.AlertWindow{Start: "00:00", End: "23:59", Levels: []string{"info"}})
	cfg.Monitoring.AlertOnImageUpdate = false

	imageEvent := types.ChangeEvent{
		Kind: types.KindPod, Namespace: "default", Name: "api",
		Type: types.ChangeImage, OldValue: "v1", NewValue: "v2",
	}
	alert, fire := gate.Evaluate(imageEvent, cfg, at(10, 0))
	assert.Nil(t, alert)
	assert.False(t, fire)

	cfg.Monitoring.AlertOnImageUpdate = true
	cfg.Monitoring.AlertOnStatusChange = false
	alert, _ = gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(10, 0))
	assert.Nil(t, alert)

	alert, fire = gate.Evaluate(imageEvent, cfg, at(10, 0))
	require.NotNil(t, alert)
	assert.True(t, fire)
	assert.Equal(t, types.SeverityInfo, alert.Level)
}

func TestEvaluate_MultipleWindows(t *testing.T) {
	gate := NewGate()
	cfg := testConfig(
		config.AlertWindow{Start: "08:00", End: "12:00", Levels: []string{"critical"}},
		config.AlertWindow{Start: "13:00", End: "18:00", Levels: []string{"warning"}},
	)

	// Warning at 10:00 matches neither window; at 14:00 the second.
	_, morning := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(10, 0))
	assert.False(t, morning)

	_, afternoon := gate.Evaluate(statusEvent("default", "api", "a", "b"), cfg, at(14, 0))
	assert.True(t, afternoon)
}
