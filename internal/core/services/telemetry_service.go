package services

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"bintunet/internal/core/domain"
)

// Telemetry ranges. Ping and viewers are drawn uniformly from [min, min+span).
const (
	startupPingMin      = 20
	startupPingSpan     = 30
	startupViewerSpan   = 5
	startupUploadMin    = 2.0
	startupUploadSpan   = 3.0
	tickPingMin         = 20
	tickPingSpan        = 50
	tickViewerDelta     = 10
	tickDroppedMaxDelta = 2
	tickUploadDelta     = 1.0
)

// TelemetrySimulator produces plausible stream telemetry. It is safe for
// concurrent use; a fixed seed makes the sequence reproducible.
type TelemetrySimulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTelemetrySimulator seeds the generator. A zero seed uses the wall clock.
func NewTelemetrySimulator(seed uint64) *TelemetrySimulator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &TelemetrySimulator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Startup returns the initial telemetry of a stream entering "starting".
func (s *TelemetrySimulator) Startup() domain.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.Telemetry{
		Ping:          startupPingMin + s.rng.IntN(startupPingSpan),
		ViewerCount:   s.rng.IntN(startupViewerSpan),
		DroppedFrames: 0,
		UploadSpeed:   roundTenth(startupUploadMin + s.rng.Float64()*startupUploadSpan),
	}
}

// Advance returns the next telemetry sample of a live stream. Dropped frames
// never decrease; viewers and upload speed never go negative.
func (s *TelemetrySimulator) Advance(prev domain.Telemetry) domain.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.Telemetry{
		Ping:          tickPingMin + s.rng.IntN(tickPingSpan),
		ViewerCount:   prev.ViewerCount + s.rng.IntN(2*tickViewerDelta+1) - tickViewerDelta,
		DroppedFrames: prev.DroppedFrames + s.rng.IntN(tickDroppedMaxDelta+1),
		UploadSpeed:   roundTenth(prev.UploadSpeed + (s.rng.Float64()*2-1)*tickUploadDelta),
	}
	if next.ViewerCount < 0 {
		next.ViewerCount = 0
	}
	if next.UploadSpeed < 0 {
		next.UploadSpeed = 0
	}
	return next
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
