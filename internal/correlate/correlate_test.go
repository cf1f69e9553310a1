package correlate

import (
	"math"
	"strings"
	"testing"
	"time"

	"incidentd/internal/types"
)

func assessment(id, rc string, layers []string, conf float64) types.AlertFindings {
	return types.AlertFindings{
		AlertID:             id,
		AlertName:           id,
		RootCauseAssessment: rc,
		AffectedLayers:      layers,
		Confidence:          conf,
	}
}

func TestConvergenceIdenticalIsOne(t *testing.T) {
	a := assessment("a1", "node worker-3 has disk pressure", []string{"compute", "storage"}, 0.7)
	if got := Convergence(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("Convergence(a, a) = %v, want 1.0", got)
	}
}

func TestConvergenceComponents(t *testing.T) {
	tests := []struct {
		name string
		prev types.AlertFindings
		curr types.AlertFindings
		want float64
	}{
		{
			name: "partial root cause overlap, same layers, same confidence",
			prev: assessment("a", "node worker has disk pressure", []string{"compute"}, 0.7),
			curr: assessment("a", "node failure cascading to pods", []string{"compute"}, 0.7),
			// rc=0.5 (shares "node" in the first five words), layers=1.0, conf=1.0
			want: 0.5*0.5 + 0.3*1.0 + 0.2*1.0,
		},
		{
			name: "disjoint assessments",
			prev: assessment("a", "disk pressure detected", []string{"storage"}, 0.2),
			curr: assessment("a", "memory leak in application", []string{"application"}, 0.9),
			// rc=0, layers=0, conf stability = 1 - 0.7
			want: 0.2 * 0.3,
		},
		{
			name: "half layer overlap",
			prev: assessment("a", "same text", []string{"compute", "storage"}, 0.5),
			curr: assessment("a", "same text", []string{"compute", "network"}, 0.5),
			// rc=1.0, jaccard = 1/3, conf=1.0
			want: 0.5 + 0.3/3.0 + 0.2,
		},
		{
			name: "confidence delta capped at one",
			prev: assessment("a", "same text", []string{"compute"}, 0.0),
			curr: assessment("a", "same text", []string{"compute"}, 1.0),
			want: 0.5 + 0.3 + 0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convergence(tt.prev, tt.curr); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Convergence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvergenceRootCauseCasing(t *testing.T) {
	// Identity is checked case-insensitively.
	prev := assessment("a", "OSD Down On worker-1", []string{"storage"}, 0.5)
	curr := assessment("a", "osd down on worker-1", []string{"storage"}, 0.5)
	if got := Convergence(prev, curr); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Convergence = %v, want 1.0 for case-only difference", got)
	}

	// An early word from the previous assessment appearing anywhere in the
	// current text counts as partial overlap.
	prev = assessment("a", "pods evicted after disk pressure", []string{"compute"}, 0.5)
	curr = assessment("a", "storage failure caused several pods to restart", []string{"compute"}, 0.5)
	want := 0.5*0.5 + 0.3*1.0 + 0.2*1.0
	if got := Convergence(prev, curr); math.Abs(got-want) > 1e-9 {
		t.Errorf("Convergence = %v, want %v for mid-text word overlap", got, want)
	}
}

func TestCheckExitMaxRoundsWins(t *testing.T) {
	e := NewEngine(Config{MaxRounds: 3, ConfidenceThreshold: 0.8, ConvergenceThreshold: 0.85})

	// Zero confidence everywhere: the round budget alone must stop the run.
	curr := []types.AlertFindings{assessment("a", "unknown", []string{"unknown"}, 0.0)}
	stop, reason := e.CheckExit(curr, nil, 3)
	if !stop {
		t.Fatal("expected stop at max rounds")
	}
	if reason != "Max rounds (3) reached" {
		t.Errorf("reason = %q", reason)
	}
}

func TestCheckExitConfidenceThreshold(t *testing.T) {
	e := NewEngine(Config{MaxRounds: 5, ConfidenceThreshold: 0.8, ConvergenceThreshold: 0.85})

	curr := []types.AlertFindings{
		assessment("a", "x", []string{"compute"}, 0.9),
		assessment("b", "y", []string{"compute"}, 0.7),
	}
	stop, reason := e.CheckExit(curr, nil, 1)
	if !stop {
		t.Fatal("mean confidence 0.80 should stop the run")
	}
	if !strings.HasPrefix(reason, "Confidence threshold") {
		t.Errorf("reason = %q", reason)
	}

	curr[1].Confidence = 0.5
	if stop, _ := e.CheckExit(curr, nil, 1); stop {
		t.Error("mean confidence 0.70 should continue")
	}
}

func TestCheckExitConvergenceRequiresSecondRound(t *testing.T) {
	e := NewEngine(Config{MaxRounds: 5, ConfidenceThreshold: 0.95, ConvergenceThreshold: 0.85})

	prev := []types.AlertFindings{assessment("a", "node disk full", []string{"storage"}, 0.6)}
	curr := []types.AlertFindings{assessment("a", "node disk full", []string{"storage"}, 0.6)}

	// Identical assessments, but round 1 never exits on convergence.
	if stop, _ := e.CheckExit(curr, nil, 1); stop {
		t.Error("round 1 must not stop on convergence")
	}

	stop, reason := e.CheckExit(curr, prev, 2)
	if !stop {
		t.Fatal("round 2 with full convergence should stop")
	}
	if !strings.HasPrefix(reason, "Convergence threshold") {
		t.Errorf("reason = %q", reason)
	}
}

func TestCheckExitUnchangedAssessments(t *testing.T) {
	// Convergence threshold set above 1.0 so only the byte-identical check
	// can fire.
	e := NewEngine(Config{MaxRounds: 5, ConfidenceThreshold: 0.95, ConvergenceThreshold: 1.1})

	prev := []types.AlertFindings{
		assessment("a", "disk full on worker-3", []string{"storage"}, 0.4),
		assessment("b", "pod evicted", []string{"compute"}, 0.4),
	}
	curr := []types.AlertFindings{
		assessment("a", "disk full on worker-3", []string{"unknown"}, 0.3),
		assessment("b", "pod evicted", []string{"unknown"}, 0.3),
	}

	stop, reason := e.CheckExit(curr, prev, 2)
	if !stop || reason != "No new findings - assessments unchanged" {
		t.Fatalf("stop=%v reason=%q", stop, reason)
	}

	curr[1].RootCauseAssessment = "pod evicted due to node pressure"
	if stop, _ := e.CheckExit(curr, prev, 2); stop {
		t.Error("changed assessment should continue")
	}
}

func TestSimultaneousWindowTenSecondsApart(t *testing.T) {
	e := NewEngine(DefaultConfig())
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	alerts := []types.AlertRecord{
		{AlertName: "KubePodCrashLooping", StartsAt: base, Labels: map[string]string{"node": "worker-1"}},
		{AlertName: "NodeDiskPressure", StartsAt: base.Add(10 * time.Second), Labels: map[string]string{"node": "worker-1"}},
	}
	patterns := e.DetectTemporalPatterns(alerts)

	var simul *TemporalPattern
	for i := range patterns {
		if patterns[i].Kind == PatternSimultaneous {
			simul = &patterns[i]
		}
	}
	if simul == nil {
		t.Fatalf("alerts 10s apart should form a simultaneous group: %+v", patterns)
	}
	if len(simul.AlertNames) != 2 || simul.Span != 10*time.Second {
		t.Errorf("group wrong: %+v", simul)
	}
}

func TestTemporalPatternsOutsideWindow(t *testing.T) {
	e := NewEngine(DefaultConfig())
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	alerts := []types.AlertRecord{
		{AlertName: "A", StartsAt: base},
		{AlertName: "B", StartsAt: base.Add(10 * time.Minute)},
	}
	for _, p := range e.DetectTemporalPatterns(alerts) {
		if p.Kind == PatternSimultaneous {
			t.Errorf("alerts 10m apart must not be simultaneous: %+v", p)
		}
	}
}

func TestCascadeDetection(t *testing.T) {
	e := NewEngine(DefaultConfig())
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	alerts := []types.AlertRecord{
		{AlertName: "CephOSDDown", StartsAt: base},
		{AlertName: "PVCStuck", StartsAt: base.Add(2 * time.Minute)},
		{AlertName: "KubePodNotReady", StartsAt: base.Add(4 * time.Minute)},
	}
	patterns := e.DetectTemporalPatterns(alerts)

	var cascade *TemporalPattern
	for i := range patterns {
		if patterns[i].Kind == PatternCascade {
			cascade = &patterns[i]
		}
	}
	if cascade == nil {
		t.Fatalf("expected a cascade: %+v", patterns)
	}
	if len(cascade.AlertNames) != 3 || cascade.AlertNames[0] != "CephOSDDown" {
		t.Errorf("cascade wrong: %+v", cascade)
	}
	if cascade.Span != 4*time.Minute {
		t.Errorf("span = %v", cascade.Span)
	}
}

func TestCascadeNeedsThreeAlerts(t *testing.T) {
	e := NewEngine(DefaultConfig())
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	alerts := []types.AlertRecord{
		{AlertName: "A", StartsAt: base},
		{AlertName: "B", StartsAt: base.Add(2 * time.Minute)},
	}
	for _, p := range e.DetectTemporalPatterns(alerts) {
		if p.Kind == PatternCascade {
			t.Errorf("two alerts must not form a cascade: %+v", p)
		}
	}
}

func TestGroupSharedInfrastructure(t *testing.T) {
	findings := []types.AlertFindings{
		{AlertID: "a1", AffectedResources: []string{"node:worker-1"}, Scope: "prod", AffectedLayers: []string{"compute"}},
		{AlertID: "a2", AffectedResources: []string{"node:worker-1"}, Scope: "prod", AffectedLayers: []string{"storage"}},
		{AlertID: "a3", AffectedResources: []string{"node:worker-9"}, Scope: "staging", AffectedLayers: []string{"compute"}},
	}
	groups := GroupSharedInfrastructure(findings)

	byKey := map[string][]string{}
	for _, g := range groups {
		byKey[g.Key] = g.AlertIDs
	}
	if got := byKey["resource:node:worker-1"]; len(got) != 2 || got[0] != "a1" || got[1] != "a2" {
		t.Errorf("shared node group wrong: %v", got)
	}
	if got := byKey["scope:prod"]; len(got) != 2 {
		t.Errorf("shared scope group wrong: %v", got)
	}
	if got := byKey["layer:compute"]; len(got) != 2 {
		t.Errorf("shared layer group wrong: %v", got)
	}
	// Singletons never form groups.
	if _, ok := byKey["resource:node:worker-9"]; ok {
		t.Error("singleton resource must not form a group")
	}
}

func TestDetectLayerCascades(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	findings := []types.AlertFindings{
		{AlertID: "s", AlertName: "CephOSDDown", AffectedLayers: []string{"storage"}, StartsAt: base},
		{AlertID: "c", AlertName: "KubePodNotReady", AffectedLayers: []string{"compute"}, StartsAt: base.Add(time.Minute)},
	}
	cascades := DetectLayerCascades(findings)

	found := false
	for _, c := range cascades {
		if c.FromLayer == "storage" && c.ToLayer == "compute" {
			found = true
			if c.FromAlert != "CephOSDDown" || c.ToAlert != "KubePodNotReady" || c.Gap != time.Minute {
				t.Errorf("cascade fields wrong: %+v", c)
			}
		}
		// Temporal order matters: compute-then-storage is not a storage
		// dependency cascade.
		if c.FromLayer == "compute" && c.ToLayer == "storage" {
			t.Errorf("unexpected reversed cascade: %+v", c)
		}
	}
	if !found {
		t.Fatalf("storage->compute cascade not detected: %+v", cascades)
	}
}

func TestMeanConvergenceMatchesByAlertID(t *testing.T) {
	prev := []types.AlertFindings{
		assessment("a", "same", []string{"compute"}, 0.5),
		assessment("b", "same", []string{"compute"}, 0.5),
	}
	curr := []types.AlertFindings{
		assessment("a", "same", []string{"compute"}, 0.5),
		assessment("new", "unmatched assessment text", []string{"network"}, 0.5),
	}
	// The mean covers only alerts present in both rounds: one perfect
	// match, the new alert does not dilute it.
	if got := MeanConvergence(prev, curr); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("MeanConvergence = %v, want 1.0", got)
	}
	if got := MeanConvergence(nil, curr); got != 0.0 {
		t.Errorf("empty prev should score 0, got %v", got)
	}

	disjoint := []types.AlertFindings{
		assessment("c", "no shared alerts", []string{"compute"}, 0.5),
	}
	if got := MeanConvergence(prev, disjoint); got != 0.0 {
		t.Errorf("rounds sharing no alerts should score 0, got %v", got)
	}
}
