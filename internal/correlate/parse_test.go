package correlate

import (
	"strings"
	"testing"
	"time"

	"incidentd/internal/types"
)

var testAlert = types.AlertRecord{
	AlertName:   "KubePodCrashLooping",
	Fingerprint: "fp-123",
	StartsAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
}

func TestParseAlertFindingsJSON(t *testing.T) {
	out := `{
		"root_cause_assessment": "OOMKilled due to memory limit",
		"affected_layers": ["compute", "application"],
		"affected_resources": ["pod:api-1"],
		"scope": "prod",
		"confidence": 0.85
	}`
	got := ParseAlertFindings(out, testAlert, 2)

	if got.RootCauseAssessment != "OOMKilled due to memory limit" {
		t.Errorf("root cause = %q", got.RootCauseAssessment)
	}
	if got.Confidence != 0.85 || got.Round != 2 || got.AlertID != "fp-123" {
		t.Errorf("fields wrong: %+v", got)
	}
	if len(got.AffectedLayers) != 2 || got.Scope != "prod" {
		t.Errorf("fields wrong: %+v", got)
	}
}

func TestParseAlertFindingsEmbeddedJSON(t *testing.T) {
	out := "Here is my assessment:\n```json\n" +
		`{"root_cause_assessment": "disk full", "affected_layers": ["storage"], "confidence": 0.7}` +
		"\n```\nLet me know if you need more."
	got := ParseAlertFindings(out, testAlert, 1)

	if got.RootCauseAssessment != "disk full" || got.Confidence != 0.7 {
		t.Errorf("embedded JSON not extracted: %+v", got)
	}
}

func TestParseAlertFindingsDegradedFallback(t *testing.T) {
	long := strings.Repeat("the investigation is ongoing ", 40)
	got := ParseAlertFindings(long, testAlert, 1)

	if len(got.RootCauseAssessment) != 500 {
		t.Errorf("fallback should truncate to 500 chars, got %d", len(got.RootCauseAssessment))
	}
	if len(got.AffectedLayers) != 1 || got.AffectedLayers[0] != "unknown" {
		t.Errorf("fallback layers wrong: %v", got.AffectedLayers)
	}
	if got.Confidence != 0.5 {
		t.Errorf("fallback confidence = %v", got.Confidence)
	}
}

func TestParseAlertFindingsIDWithoutFingerprint(t *testing.T) {
	alert := types.AlertRecord{
		AlertName: "NodeDown",
		Labels:    map[string]string{"namespace": "prod", "pod": "db-0"},
	}
	got := ParseAlertFindings("{}", alert, 1)
	if got.AlertID != "NodeDown/prod/db-0" {
		t.Errorf("AlertID = %q", got.AlertID)
	}
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{`{"confidence": 0.8}`, 0.8},
		{"I assess this with confidence: 0.75 overall", 0.75},
		{"confidence: 80%", 0.8},
		{"Confidence 90", 0.9},
		{"no number here", 0.5},
		{"", 0.5},
	}
	for _, tt := range tests {
		if got := ExtractConfidence(tt.text); got != tt.want {
			t.Errorf("ExtractConfidence(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
