package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"incidentd/internal/types"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := types.WorkflowState{
		Status: types.StatusRunning,
		Messages: []types.ChatMessage{
			{Role: "user", Content: "investigate prod alerts", Timestamp: time.Now().UTC()},
			{Role: "assistant", Content: "Fetching alerts.", Timestamp: time.Now().UTC()},
		},
		PendingQuestion: "Which environment?",
	}
	if err := s.SaveSession(ctx, "sess-1", state); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	rec, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if rec.State.Status != types.StatusRunning || len(rec.State.Messages) != 2 {
		t.Errorf("state not preserved: %+v", rec.State)
	}
	if rec.State.PendingQuestion != "Which environment?" {
		t.Errorf("pending question lost: %q", rec.State.PendingQuestion)
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, "sess-1", types.WorkflowState{Status: types.StatusRunning}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.SaveSession(ctx, "sess-1", types.WorkflowState{Status: types.StatusCompleted}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions["sess-1"] != types.StatusCompleted {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LoadSession(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestFindingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	findings := []types.Finding{
		{ResourceKey: "pod:api-1", Observation: "OOMKilled", Confidence: 0.9, Author: "ComputeSpecialist", RecordedAt: time.Now().UTC().Truncate(time.Second)},
		{ResourceKey: "node:w1", Observation: "disk pressure", Confidence: 0.6, Author: "StorageSpecialist", RecordedAt: time.Now().UTC().Truncate(time.Second)},
	}
	if err := s.SaveFindings(ctx, "sess-1", findings); err != nil {
		t.Fatalf("SaveFindings failed: %v", err)
	}

	got, err := s.LoadFindings(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadFindings failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(got))
	}
	if got[0].ResourceKey != "pod:api-1" || got[1].ResourceKey != "node:w1" {
		t.Errorf("ordering lost: %+v", got)
	}
	if got[0].Confidence != 0.9 || got[0].Author != "ComputeSpecialist" {
		t.Errorf("fields lost: %+v", got[0])
	}

	// Rewriting replaces, not appends.
	if err := s.SaveFindings(ctx, "sess-1", findings[:1]); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	got, err = s.LoadFindings(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadFindings failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("rewrite should replace: got %d findings", len(got))
	}
}

func TestFindingsIsolatedBySession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := []types.Finding{{ResourceKey: "pod:a", Observation: "x", Confidence: 0.5, Author: "t", RecordedAt: time.Now().UTC()}}
	if err := s.SaveFindings(ctx, "sess-1", f); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadFindings(ctx, "sess-2")
	if err != nil {
		t.Fatalf("LoadFindings failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("findings leaked across sessions: %+v", got)
	}
}
