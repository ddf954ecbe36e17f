// Package scoring fuses per-signal descriptor distances into one ranking
// score. Lower is better; boosts may drive scores below zero.
package scoring

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"

	"github.com/skinmatch/platform/internal/compare"
	"github.com/skinmatch/platform/internal/descriptor"
)

// Term is one signal's contribution.
type Term struct {
	Signal     Signal
	Raw        float64
	Normalized float64
	Weight     float64
	Boost      float64
}

// Finite reports whether the signal could be compared.
func (t Term) Finite() bool { return finite(t.Raw) }

type termJSON struct {
	Signal     Signal   `json:"signal"`
	Raw        *float64 `json:"raw"`
	Normalized *float64 `json:"normalized"`
	Weight     float64  `json:"weight"`
	Boost      float64  `json:"boost"`
}

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(termJSON{
		Signal:     t.Signal,
		Raw:        nullable(t.Raw),
		Normalized: nullable(t.Normalized),
		Weight:     t.Weight,
		Boost:      t.Boost,
	})
}

// AppliedBoost records one subtraction.
type AppliedBoost struct {
	Signal Signal  `json:"signal"`
	Rule   string  `json:"rule"`
	Amount float64 `json:"amount"`
}

// Breakdown explains a score.
type Breakdown struct {
	Terms    []Term         `json:"terms"`
	Applied  []AppliedBoost `json:"applied,omitempty"`
	Coverage float64        `json:"coverage"`
	Base     float64        `json:"base"`
}

// Term returns the entry for s.
func (b Breakdown) Term(s Signal) Term {
	for _, t := range b.Terms {
		if t.Signal == s {
			return t
		}
	}
	return Term{Signal: s, Raw: compare.Inf, Normalized: compare.Inf}
}

// Result is a fused score with its explanation. Score is +Inf when no
// signal could be compared.
type Result struct {
	Score     float64
	Breakdown Breakdown
}

// Finite reports whether the pair is rankable.
func (r Result) Finite() bool { return finite(r.Score) }

type resultJSON struct {
	Score     *float64  `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{Score: nullable(r.Score), Breakdown: r.Breakdown})
}

// Scorer applies a Policy. It is stateless and safe for concurrent use.
type Scorer struct {
	policy Policy
}

// NewScorer returns a scorer for p.
func NewScorer(p Policy) *Scorer {
	return &Scorer{policy: p}
}

// Policy returns the policy in use.
func (s *Scorer) Policy() Policy { return s.policy }

// Raw runs every comparator. The second value is the palette coverage.
func (s *Scorer) Raw(ref, cand descriptor.Descriptor) ([numSignals]float64, float64) {
	var raw [numSignals]float64
	pal := compare.Palette(ref.Palette, cand.Palette, s.policy.CoverageThreshold)
	raw[SignalPalette] = pal.Distance
	raw[SignalSignature] = compare.Signature(ref.Signature, cand.Signature, s.policy.TransparentAlpha)
	raw[SignalShape] = compare.Shape(ref.Shape, cand.Shape)
	raw[SignalTones] = compare.Tones(ref.Tones, cand.Tones)
	raw[SignalHash] = compare.Hash(ref.Hash, cand.Hash)
	raw[SignalEdges] = compare.Edges(ref.Edges, cand.Edges)
	return raw, pal.Coverage
}

// Score compares a candidate against the reference.
func (s *Scorer) Score(ref, cand descriptor.Descriptor) Result {
	raw, coverage := s.Raw(ref, cand)

	bd := Breakdown{Terms: make([]Term, 0, numSignals), Coverage: coverage}
	var sum, weight float64
	for _, sig := range Signals {
		sp := s.policy.Signals[sig]
		t := Term{Signal: sig, Raw: raw[sig], Normalized: compare.Inf, Weight: sp.Weight}
		if t.Finite() {
			t.Normalized = math.Min(1, math.Max(0, t.Raw/sp.Max))
			sum += sp.Weight * t.Normalized
			weight += sp.Weight
		}
		bd.Terms = append(bd.Terms, t)
	}
	if weight == 0 {
		bd.Base = compare.Inf
		return Result{Score: compare.Inf, Breakdown: bd}
	}
	bd.Base = sum / weight

	score := bd.Base
	for i := range bd.Terms {
		t := &bd.Terms[i]
		if !t.Finite() {
			continue
		}
		for _, b := range s.boosts(t.Signal, t.Raw, coverage) {
			t.Boost += b.Amount
			score -= b.Amount
			bd.Applied = append(bd.Applied, b)
		}
	}
	return Result{Score: score, Breakdown: bd}
}

func (s *Scorer) boosts(sig Signal, raw, coverage float64) []AppliedBoost {
	var out []AppliedBoost
	if sig == SignalPalette && coverage > 0 && s.policy.CoverageBoost != 0 {
		out = append(out, AppliedBoost{Signal: sig, Rule: "coverage", Amount: coverage * s.policy.CoverageBoost})
	}
	sp := s.policy.Signals[sig]
	if sp.RampScale > 0 {
		if amt := math.Max(0, 1-raw/sp.RampScale) * sp.RampBoost; amt > 0 {
			out = append(out, AppliedBoost{Signal: sig, Rule: "ramp", Amount: amt})
		}
	}
	for _, st := range sp.Steps {
		if raw < st.Below {
			out = append(out, AppliedBoost{Signal: sig, Rule: fmt.Sprintf("below %g", st.Below), Amount: st.Amount})
		}
	}
	return out
}

// Candidate is a scored catalogue entry. Index is its insertion position and
// breaks ties.
type Candidate struct {
	ID     string
	Index  int
	Result Result
}

// Compare orders candidates by ascending score, then by index.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(a.Result.Score, b.Result.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func nullable(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}
