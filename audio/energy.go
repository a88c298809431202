package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Default energy gate parameters.
const (
	DefaultMinRMS        = 0.015
	DefaultMinSpeechDur  = 120 * time.Millisecond
	defaultSmoothingAlpha = 0.3

	pcmBytesPerSample = 2
	pcmMaxAmplitude   = 32768.0
)

// EnergyParams configures the speech energy gate used to separate real
// debtor speech from background noise.
type EnergyParams struct {
	// MinRMS is the smoothed RMS floor below which audio is treated as
	// noise (default: 0.015 for normalized 16-bit PCM).
	MinRMS float64

	// MinSpeechDur is how long audio must stay above the floor before the
	// gate opens (default: 120ms). Prevents triggering on coughs and clicks.
	MinSpeechDur time.Duration
}

func (p *EnergyParams) defaults() {
	if p.MinRMS <= 0 {
		p.MinRMS = DefaultMinRMS
	}
	if p.MinSpeechDur <= 0 {
		p.MinSpeechDur = DefaultMinSpeechDur
	}
}

// EnergyGate is a lightweight RMS-based speech detector. It smooths the
// per-frame RMS and opens only after the signal has stayed above the
// configured floor for the minimum speech duration.
type EnergyGate struct {
	params EnergyParams

	mu          sync.Mutex
	smoothedRMS float64
	aboveSince  time.Time
	open        bool
}

// NewEnergyGate creates an EnergyGate with the given parameters.
func NewEnergyGate(params EnergyParams) *EnergyGate {
	params.defaults()
	return &EnergyGate{params: params}
}

// Process feeds one frame of 16-bit little-endian PCM into the gate and
// returns whether the gate is open (speech present) after this frame.
func (g *EnergyGate) Process(audio []byte, at time.Time) bool {
	rms := rmsPCM16(audio)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.smoothedRMS = defaultSmoothingAlpha*rms + (1-defaultSmoothingAlpha)*g.smoothedRMS

	if g.smoothedRMS < g.params.MinRMS {
		g.aboveSince = time.Time{}
		g.open = false
		return false
	}

	if g.aboveSince.IsZero() {
		g.aboveSince = at
	}
	if at.Sub(g.aboveSince) >= g.params.MinSpeechDur {
		g.open = true
	}
	return g.open
}

// Open reports whether the gate currently considers speech present.
func (g *EnergyGate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Reset clears accumulated state for a new utterance.
func (g *EnergyGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.smoothedRMS = 0
	g.aboveSince = time.Time{}
	g.open = false
}

// rmsPCM16 computes the Root Mean Square of 16-bit little-endian PCM
// samples, normalized to 0.0-1.0.
func rmsPCM16(audio []byte) float64 {
	numSamples := len(audio) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(audio[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}
