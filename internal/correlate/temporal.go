package correlate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"incidentd/internal/types"
)

// ----- temporal patterns -----

// PatternKind classifies a detected temporal pattern.
type PatternKind string

const (
	PatternSimultaneous PatternKind = "simultaneous"
	PatternCascade      PatternKind = "cascade"
)

// TemporalPattern is a group of alerts related by firing time.
type TemporalPattern struct {
	Kind        PatternKind
	AlertNames  []string
	Span        time.Duration
	Description string
}

// DetectTemporalPatterns finds simultaneous groups (alerts firing within
// SimultaneousWindow of the group's first alert) and cascade chains (three
// or more alerts each firing within CascadeMaxGap of the previous one).
func (e *Engine) DetectTemporalPatterns(alerts []types.AlertRecord) []TemporalPattern {
	if len(alerts) < 2 {
		return nil
	}
	sorted := append([]types.AlertRecord(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartsAt.Before(sorted[j].StartsAt)
	})

	var patterns []TemporalPattern
	patterns = append(patterns, e.simultaneousGroups(sorted)...)
	patterns = append(patterns, e.cascadeChains(sorted)...)
	return patterns
}

// simultaneousGroups walks the sorted alerts and collects runs that all
// start within the window of the run's first alert.
func (e *Engine) simultaneousGroups(sorted []types.AlertRecord) []TemporalPattern {
	var patterns []TemporalPattern
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].StartsAt.Sub(sorted[i].StartsAt) <= e.cfg.SimultaneousWindow {
			j++
		}
		if j-i >= 2 {
			names := alertNames(sorted[i:j])
			span := sorted[j-1].StartsAt.Sub(sorted[i].StartsAt)
			patterns = append(patterns, TemporalPattern{
				Kind:       PatternSimultaneous,
				AlertNames: names,
				Span:       span,
				Description: fmt.Sprintf("%d alerts fired within %v of each other",
					j-i, e.cfg.SimultaneousWindow),
			})
			i = j
			continue
		}
		i++
	}
	return patterns
}

// cascadeChains finds ordered chains of three or more alerts where each
// consecutive gap is positive and at most CascadeMaxGap. The lookahead is
// bounded to five alerts past the chain start.
func (e *Engine) cascadeChains(sorted []types.AlertRecord) []TemporalPattern {
	var patterns []TemporalPattern
	i := 0
	for i < len(sorted) {
		end := i + 1
		limit := i + 5
		if limit >= len(sorted) {
			limit = len(sorted) - 1
		}
		for end <= limit {
			gap := sorted[end].StartsAt.Sub(sorted[end-1].StartsAt)
			if gap <= 0 || gap > e.cfg.CascadeMaxGap {
				break
			}
			end++
		}
		if end-i >= 3 {
			span := sorted[end-1].StartsAt.Sub(sorted[i].StartsAt)
			patterns = append(patterns, TemporalPattern{
				Kind:       PatternCascade,
				AlertNames: alertNames(sorted[i:end]),
				Span:       span,
				Description: fmt.Sprintf("cascade of %d alerts over %v, starting with %s",
					end-i, span, sorted[i].AlertName),
			})
			i = end
			continue
		}
		i++
	}
	return patterns
}

func alertNames(alerts []types.AlertRecord) []string {
	names := make([]string, len(alerts))
	for i, a := range alerts {
		names[i] = a.AlertName
	}
	return names
}

// ----- layer cascades -----

// layerDependencies lists (upstream, downstream) pairs: a failure in the
// upstream layer can plausibly cause a failure in the downstream layer.
var layerDependencies = [][2]string{
	{"infrastructure", "compute"},
	{"infrastructure", "storage"},
	{"storage", "compute"},
	{"compute", "application"},
	{"storage", "application"},
	{"network", "compute"},
	{"network", "application"},
}

// LayerCascade is a hypothesis that one alert's layer failure caused
// another's.
type LayerCascade struct {
	FromLayer string
	ToLayer   string
	FromAlert string // alert name of the earlier, upstream assessment
	ToAlert   string
	Gap       time.Duration
}

// DetectLayerCascades checks each known layer dependency against the
// assessments: when an alert affecting the upstream layer started before
// an alert affecting the downstream layer, a cascade hypothesis is
// produced. Results are ordered by the dependency table, then by alert
// start time.
func DetectLayerCascades(findings []types.AlertFindings) []LayerCascade {
	var out []LayerCascade
	for _, dep := range layerDependencies {
		upstream := findingsInLayer(findings, dep[0])
		downstream := findingsInLayer(findings, dep[1])
		for _, up := range upstream {
			for _, down := range downstream {
				if up.AlertID == down.AlertID {
					continue
				}
				if !up.StartsAt.Before(down.StartsAt) {
					continue
				}
				out = append(out, LayerCascade{
					FromLayer: dep[0],
					ToLayer:   dep[1],
					FromAlert: up.AlertName,
					ToAlert:   down.AlertName,
					Gap:       down.StartsAt.Sub(up.StartsAt),
				})
			}
		}
	}
	return out
}

func findingsInLayer(findings []types.AlertFindings, layer string) []types.AlertFindings {
	var out []types.AlertFindings
	for _, f := range findings {
		for _, l := range f.AffectedLayers {
			if strings.ToLower(strings.TrimSpace(l)) == layer {
				out = append(out, f)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}
