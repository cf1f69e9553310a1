// Package correlate implements multi-alert correlation: shared
// infrastructure grouping, temporal pattern detection, cross-layer cascade
// detection, and round-over-round convergence scoring with an explicit
// exit policy.
package correlate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// ===== CONFIG =====

// Config controls correlation rounds and exit policy.
type Config struct {
	// MaxRounds caps the number of investigation rounds.
	MaxRounds int `yaml:"max_rounds"`
	// ConfidenceThreshold stops rounds once mean assessment confidence
	// reaches it.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// ConvergenceThreshold stops rounds once assessments stabilize.
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	// SimultaneousWindow is the span within which alerts count as
	// simultaneous.
	SimultaneousWindow time.Duration `yaml:"simultaneous_window"`
	// CascadeMaxGap is the largest gap between consecutive alerts in a
	// cascade chain.
	CascadeMaxGap time.Duration `yaml:"cascade_max_gap"`
}

// DefaultConfig returns the standard correlation settings.
func DefaultConfig() Config {
	return Config{
		MaxRounds:            3,
		ConfidenceThreshold:  0.8,
		ConvergenceThreshold: 0.85,
		SimultaneousWindow:   30 * time.Second,
		CascadeMaxGap:        300 * time.Second,
	}
}

// normalized fills zero values with defaults so a partially populated
// config from YAML still behaves.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = def.MaxRounds
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if c.SimultaneousWindow <= 0 {
		c.SimultaneousWindow = def.SimultaneousWindow
	}
	if c.CascadeMaxGap <= 0 {
		c.CascadeMaxGap = def.CascadeMaxGap
	}
	return c
}

// ===== ENGINE =====

// Engine screens alert assessments across rounds and decides when the
// investigation has converged.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, filling zero config values with defaults.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalized()}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ===== CONVERGENCE =====

// Convergence scores how similar two assessments of the same alert are,
// in [0.0, 1.0]. The score combines root-cause text similarity (weight
// 0.5), Jaccard similarity of affected layers (weight 0.3), and confidence
// stability (weight 0.2). An assessment compared with itself scores 1.0.
func Convergence(prev, curr types.AlertFindings) float64 {
	rc := rootCauseSimilarity(prev.RootCauseAssessment, curr.RootCauseAssessment)
	layers := jaccard(prev.AffectedLayers, curr.AffectedLayers)
	confDelta := math.Abs(curr.Confidence - prev.Confidence)
	confStability := 1.0 - math.Min(confDelta, 1.0)
	return 0.5*rc + 0.3*layers + 0.2*confStability
}

// rootCauseSimilarity compares assessments case-insensitively: 1.0 for
// identical text, 0.5 when any of the previous assessment's first five
// words appears anywhere in the current text, 0.0 otherwise.
func rootCauseSimilarity(prev, curr string) float64 {
	prevLower := strings.ToLower(prev)
	currLower := strings.ToLower(curr)
	if prevLower == currLower {
		return 1.0
	}
	for _, w := range firstWords(prevLower, 5) {
		if strings.Contains(currLower, w) {
			return 0.5
		}
	}
	return 0.0
}

func firstWords(s string, n int) []string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}

// jaccard computes |A∩B| / |A∪B| over layer names. Two empty sets are
// identical, scoring 1.0.
func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	inter := 0
	for v := range setA {
		if setB[v] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

func toSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = true
		}
	}
	return out
}

// MeanConvergence averages per-alert convergence between two rounds,
// matching assessments by AlertID. Only alerts present in both rounds
// count toward the mean; returns 0 when the rounds share no alerts.
func MeanConvergence(prev, curr []types.AlertFindings) float64 {
	if len(prev) == 0 || len(curr) == 0 {
		return 0.0
	}
	prevByID := make(map[string]types.AlertFindings, len(prev))
	for _, f := range prev {
		prevByID[f.AlertID] = f
	}
	total := 0.0
	matched := 0
	for _, f := range curr {
		if p, ok := prevByID[f.AlertID]; ok {
			total += Convergence(p, f)
			matched++
		}
	}
	if matched == 0 {
		return 0.0
	}
	return total / float64(matched)
}

// MeanConfidence averages assessment confidence; 0 for an empty round.
func MeanConfidence(findings []types.AlertFindings) float64 {
	if len(findings) == 0 {
		return 0.0
	}
	total := 0.0
	for _, f := range findings {
		total += f.Confidence
	}
	return total / float64(len(findings))
}

// ===== EXIT POLICY =====

// CheckExit decides whether the investigation should stop after the given
// round. Conditions are evaluated in fixed priority order: round budget,
// confidence threshold, convergence threshold (round > 1), unchanged
// assessments (round > 1). Returns the reason when stopping.
func (e *Engine) CheckExit(curr, prev []types.AlertFindings, round int) (bool, string) {
	if round >= e.cfg.MaxRounds {
		return true, fmt.Sprintf("Max rounds (%d) reached", e.cfg.MaxRounds)
	}

	if mean := MeanConfidence(curr); mean >= e.cfg.ConfidenceThreshold {
		return true, fmt.Sprintf("Confidence threshold (%.2f) reached: %.2f", e.cfg.ConfidenceThreshold, mean)
	}

	if round > 1 {
		if conv := MeanConvergence(prev, curr); conv >= e.cfg.ConvergenceThreshold {
			return true, fmt.Sprintf("Convergence threshold (%.2f) reached: %.2f", e.cfg.ConvergenceThreshold, conv)
		}
		if assessmentsUnchanged(prev, curr) {
			return true, "No new findings - assessments unchanged"
		}
	}

	logging.CorrelateDebug("round %d continues: confidence=%.2f", round, MeanConfidence(curr))
	return false, ""
}

// assessmentsUnchanged reports whether every current root-cause assessment
// is byte-identical to the previous round's for the same alert.
func assessmentsUnchanged(prev, curr []types.AlertFindings) bool {
	if len(curr) == 0 {
		return false
	}
	prevByID := make(map[string]string, len(prev))
	for _, f := range prev {
		prevByID[f.AlertID] = f.RootCauseAssessment
	}
	for _, f := range curr {
		rc, ok := prevByID[f.AlertID]
		if !ok || rc != f.RootCauseAssessment {
			return false
		}
	}
	return true
}

// ===== SHARED INFRASTRUCTURE =====

// SharedGroup names a resource, scope or layer shared by two or more
// alerts.
type SharedGroup struct {
	// Key is "resource:<name>", "scope:<name>" or "layer:<name>".
	Key string
	// AlertIDs lists the member alerts, sorted.
	AlertIDs []string
}

// GroupSharedInfrastructure finds resources, scopes and layers that appear
// in at least two assessments. Results are sorted by key for deterministic
// output.
func GroupSharedInfrastructure(findings []types.AlertFindings) []SharedGroup {
	members := map[string]map[string]bool{}
	add := func(key, alertID string) {
		if key == "" || alertID == "" {
			return
		}
		if members[key] == nil {
			members[key] = map[string]bool{}
		}
		members[key][alertID] = true
	}

	for _, f := range findings {
		for _, res := range f.AffectedResources {
			add("resource:"+strings.ToLower(strings.TrimSpace(res)), f.AlertID)
		}
		if f.Scope != "" {
			add("scope:"+strings.ToLower(strings.TrimSpace(f.Scope)), f.AlertID)
		}
		for _, layer := range f.AffectedLayers {
			add("layer:"+strings.ToLower(strings.TrimSpace(layer)), f.AlertID)
		}
	}

	var out []SharedGroup
	for key, ids := range members {
		if len(ids) < 2 {
			continue
		}
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)
		out = append(out, SharedGroup{Key: key, AlertIDs: sorted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
