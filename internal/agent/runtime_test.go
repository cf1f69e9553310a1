package agent

import (
	"testing"

	"google.golang.org/genai"

	"incidentd/internal/graph"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.DefaultSpec())
	if err != nil {
		t.Fatalf("graph build failed: %v", err)
	}
	return g
}

func TestAuthorizeHandoffRequiresRecommendation(t *testing.T) {
	ts := newTestToolset()

	if allowed, _ := ts.AuthorizeHandoff(OrchestratorName, StorageSpecialist); allowed {
		t.Error("specialist handoff allowed before any router consult")
	}
	if allowed, _ := ts.AuthorizeHandoff(StorageSpecialist, OrchestratorName); !allowed {
		t.Error("hand-back to the orchestrator should always be allowed")
	}

	if _, err := runTool(t, ts.RouterTools(), "consult_router", map[string]any{
		"alert_text": "rbd image slow requests",
	}); err != nil {
		t.Fatalf("consult_router failed: %v", err)
	}

	if allowed, _ := ts.AuthorizeHandoff(OrchestratorName, StorageSpecialist); !allowed {
		t.Error("recommended specialist should be allowed after consult")
	}
	if allowed, _ := ts.AuthorizeHandoff(OrchestratorName, NetworkSpecialist); allowed {
		t.Error("unrecommended specialist should stay gated")
	}
}

func TestDispatchHandoffSuspendsWhenUnauthorized(t *testing.T) {
	ts := newTestToolset()
	g := testGraph(t)
	r, err := NewGenAIRuntime(nil, "test-model", 5, NewTeam(ts), g, ts.AuthorizeHandoff)
	if err != nil {
		t.Fatalf("runtime build failed: %v", err)
	}

	state := &resumeState{agent: OrchestratorName}
	call := &genai.FunctionCall{Name: handoffPrefix + NetworkSpecialist}

	result, err := r.dispatchHandoff(state, call)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result == nil || result.Suspended == nil {
		t.Fatal("unauthorized handoff should suspend the turn")
	}
	if result.Suspended.Kind != SuspendSelection {
		t.Errorf("suspension kind = %q", result.Suspended.Kind)
	}
	sel := result.Suspended.Selection
	if sel == nil {
		t.Fatal("suspension carries no selection request")
	}
	if sel.FromAgent != OrchestratorName || sel.SuggestedAgent != NetworkSpecialist {
		t.Errorf("selection request = %+v", sel)
	}
	if len(sel.AvailableAgents) != len(DefaultSpecialists) {
		t.Errorf("available agents = %v", sel.AvailableAgents)
	}
	if state.agent != OrchestratorName {
		t.Errorf("agent changed despite suspension: %s", state.agent)
	}
}

func TestDispatchHandoffProceedsAfterConsult(t *testing.T) {
	ts := newTestToolset()
	g := testGraph(t)
	r, err := NewGenAIRuntime(nil, "test-model", 5, NewTeam(ts), g, ts.AuthorizeHandoff)
	if err != nil {
		t.Fatalf("runtime build failed: %v", err)
	}

	if _, err := runTool(t, ts.RouterTools(), "consult_router", map[string]any{
		"alert_text": "rbd image slow requests",
	}); err != nil {
		t.Fatalf("consult_router failed: %v", err)
	}

	state := &resumeState{agent: OrchestratorName}
	call := &genai.FunctionCall{Name: handoffPrefix + StorageSpecialist}

	result, err := r.dispatchHandoff(state, call)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result != nil {
		t.Fatalf("recommended handoff should not suspend: %+v", result)
	}
	if state.agent != StorageSpecialist {
		t.Errorf("agent = %q, want %q", state.agent, StorageSpecialist)
	}
}
