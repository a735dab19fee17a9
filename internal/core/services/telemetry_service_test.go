package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bintunet/internal/core/domain"
)

func TestTelemetrySimulator_StartupRanges(t *testing.T) {
	sim := NewTelemetrySimulator(42)
	for i := 0; i < 500; i++ {
		tm := sim.Startup()
		assert.GreaterOrEqual(t, tm.Ping, 20)
		assert.Less(t, tm.Ping, 50)
		assert.GreaterOrEqual(t, tm.ViewerCount, 0)
		assert.Less(t, tm.ViewerCount, 5)
		assert.GreaterOrEqual(t, tm.UploadSpeed, 2.0)
		assert.LessOrEqual(t, tm.UploadSpeed, 5.0)
		assert.Zero(t, tm.DroppedFrames)
	}
}

func TestTelemetrySimulator_AdvanceInvariants(t *testing.T) {
	sim := NewTelemetrySimulator(7)
	tm := sim.Startup()
	for i := 0; i < 1000; i++ {
		next := sim.Advance(tm)
		assert.GreaterOrEqual(t, next.Ping, 20)
		assert.Less(t, next.Ping, 70)
		assert.GreaterOrEqual(t, next.ViewerCount, 0)
		assert.LessOrEqual(t, next.ViewerCount, tm.ViewerCount+10)
		assert.GreaterOrEqual(t, next.DroppedFrames, tm.DroppedFrames)
		assert.LessOrEqual(t, next.DroppedFrames, tm.DroppedFrames+2)
		assert.GreaterOrEqual(t, next.UploadSpeed, 0.0)
		tm = next
	}
}

func TestTelemetrySimulator_ClampsAtZero(t *testing.T) {
	sim := NewTelemetrySimulator(3)
	for i := 0; i < 200; i++ {
		next := sim.Advance(domain.Telemetry{})
		assert.GreaterOrEqual(t, next.ViewerCount, 0)
		assert.GreaterOrEqual(t, next.UploadSpeed, 0.0)
	}
}

func TestTelemetrySimulator_SeedIsReproducible(t *testing.T) {
	a := NewTelemetrySimulator(99)
	b := NewTelemetrySimulator(99)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Startup(), b.Startup())
	}
}
