package scoring

import (
	"fmt"
	"math"

	"github.com/skinmatch/platform/internal/colorspace"
	"github.com/skinmatch/platform/internal/compare"
	apperrors "github.com/skinmatch/platform/internal/errors"
)

// Signal names one descriptor comparison.
type Signal int

const (
	SignalPalette Signal = iota
	SignalSignature
	SignalShape
	SignalTones
	SignalHash
	SignalEdges
	numSignals
)

// Signals lists every signal in breakdown order.
var Signals = []Signal{SignalPalette, SignalSignature, SignalShape, SignalTones, SignalHash, SignalEdges}

var signalNames = [numSignals]string{"palette", "signature", "shape", "tones", "hash", "edges"}

func (s Signal) String() string {
	if s < 0 || s >= numSignals {
		return fmt.Sprintf("signal(%d)", int(s))
	}
	return signalNames[s]
}

func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signal) UnmarshalText(text []byte) error {
	for i, name := range signalNames {
		if name == string(text) {
			*s = Signal(i)
			return nil
		}
	}
	return fmt.Errorf("unknown signal %q", text)
}

// Step subtracts Amount when the raw distance is below Below.
type Step struct {
	Below  float64
	Amount float64
}

// SignalPolicy is how one signal enters the fused score.
type SignalPolicy struct {
	Weight float64
	// Max divides the raw distance into [0,1].
	Max float64
	// RampScale is the raw distance where the proportional boost reaches
	// zero; RampBoost is its size at distance 0. Zero RampScale disables it.
	RampScale float64
	RampBoost float64
	// Steps stack: every step whose threshold is crossed applies.
	Steps []Step
}

// Policy holds every constant of the fusion engine.
type Policy struct {
	Signals [numSignals]SignalPolicy

	// CoverageBoost multiplies the palette coverage fraction.
	CoverageBoost     float64
	CoverageThreshold float64
	TransparentAlpha  uint8
}

// DefaultPolicy returns the tuned weights and boosts.
func DefaultPolicy() Policy {
	var p Policy
	p.CoverageBoost = 0.32
	p.CoverageThreshold = compare.DefaultCoverageThreshold
	p.TransparentAlpha = compare.DefaultTransparentAlpha

	p.Signals[SignalPalette] = SignalPolicy{Weight: 0.24, Max: colorspace.MaxRGBDistance}
	p.Signals[SignalSignature] = SignalPolicy{
		Weight: 0.28, Max: colorspace.MaxRGBDistance,
		RampScale: 160, RampBoost: 0.24,
		Steps: []Step{{Below: 20, Amount: 0.08}, {Below: 12, Amount: 0.12}},
	}
	p.Signals[SignalShape] = SignalPolicy{
		Weight: 0.16, Max: 1,
		RampScale: 0.32, RampBoost: 0.16,
		Steps: []Step{{Below: 0.18, Amount: 0.06}},
	}
	p.Signals[SignalTones] = SignalPolicy{
		Weight: 0.18, Max: 2,
		RampScale: 0.72, RampBoost: 0.18,
		Steps: []Step{{Below: 0.18, Amount: 0.05}},
	}
	p.Signals[SignalHash] = SignalPolicy{
		Weight: 0.22, Max: 1,
		RampScale: 0.32, RampBoost: 0.18,
		Steps: []Step{{Below: 0.12, Amount: 0.10}},
	}
	p.Signals[SignalEdges] = SignalPolicy{
		Weight: 0.12, Max: 1,
		RampScale: 0.26, RampBoost: 0.12,
		Steps: []Step{{Below: 0.10, Amount: 0.07}},
	}
	return p
}

// Validate rejects policies that cannot produce a score.
func (p Policy) Validate() error {
	total := 0.0
	for _, s := range Signals {
		sp := p.Signals[s]
		if sp.Weight < 0 || math.IsNaN(sp.Weight) {
			return apperrors.Newf(apperrors.CodeConfigInvalid, "%s weight %v is negative", s, sp.Weight)
		}
		if !(sp.Max > 0) {
			return apperrors.Newf(apperrors.CodeConfigInvalid, "%s max %v must be positive", s, sp.Max)
		}
		if sp.RampScale < 0 {
			return apperrors.Newf(apperrors.CodeConfigInvalid, "%s ramp scale %v is negative", s, sp.RampScale)
		}
		total += sp.Weight
	}
	if total == 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "all signal weights are zero")
	}
	return nil
}
