package correlate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// ----- assessment parsing -----

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
	confidenceRe = regexp.MustCompile(`(?i)confidence[:\s]+(\d+\.?\d*)%?`)
)

// rawFindings mirrors the JSON shape investigators are instructed to emit.
type rawFindings struct {
	RootCauseAssessment string            `json:"root_cause_assessment"`
	AffectedLayers      []string          `json:"affected_layers"`
	AffectedResources   []string          `json:"affected_resources"`
	Scope               string            `json:"scope"`
	Confidence          float64           `json:"confidence"`
	SpecialistFindings  map[string]string `json:"specialist_findings"`
	InvestigationPath   []string          `json:"investigation_path"`
}

// ParseAlertFindings extracts a structured assessment from an
// investigator's output. The output is tried as JSON directly, then as the
// first embedded JSON object. When neither parses, a degraded assessment is
// returned: the raw output (truncated to 500 characters) becomes the
// root-cause text with layer "unknown" and confidence 0.5, so a malformed
// agent response never aborts a round.
func ParseAlertFindings(output string, alert types.AlertRecord, round int) types.AlertFindings {
	base := types.AlertFindings{
		AlertName: alert.AlertName,
		AlertID:   alertID(alert),
		Round:     round,
		StartsAt:  alert.StartsAt,
	}

	var raw rawFindings
	text := strings.TrimSpace(output)
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		if match := jsonObjectRe.FindString(text); match == "" || json.Unmarshal([]byte(match), &raw) != nil {
			logging.CorrelateDebug("unparseable assessment for %s, using degraded fallback", base.AlertID)
			base.RootCauseAssessment = truncate(text, 500)
			base.AffectedLayers = []string{"unknown"}
			base.Confidence = 0.5
			return base
		}
	}

	base.RootCauseAssessment = raw.RootCauseAssessment
	base.AffectedLayers = raw.AffectedLayers
	base.AffectedResources = raw.AffectedResources
	base.Scope = raw.Scope
	base.Confidence = raw.Confidence
	base.SpecialistFindings = raw.SpecialistFindings
	base.InvestigationPath = raw.InvestigationPath

	if base.RootCauseAssessment == "" {
		base.RootCauseAssessment = truncate(text, 500)
	}
	if len(base.AffectedLayers) == 0 {
		base.AffectedLayers = []string{"unknown"}
	}
	if base.Confidence == 0 {
		base.Confidence = ExtractConfidence(text)
	}
	return base
}

// ExtractConfidence pulls a confidence value out of free text. JSON-style
// "confidence": 0.8 fields and phrases like "confidence: 80%" both work;
// values above 1.0 are treated as percentages. Defaults to 0.5.
func ExtractConfidence(text string) float64 {
	var probe struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &probe); err == nil && probe.Confidence > 0 {
		return normalizeConfidence(probe.Confidence)
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return normalizeConfidence(v)
		}
	}
	return 0.5
}

func normalizeConfidence(v float64) float64 {
	if v > 1.0 {
		v = v / 100.0
	}
	if v < 0 {
		return 0.5
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// alertID builds a stable identifier for an alert, preferring the source
// fingerprint.
func alertID(alert types.AlertRecord) string {
	if alert.Fingerprint != "" {
		return alert.Fingerprint
	}
	id := alert.AlertName
	if ns := alert.Labels["namespace"]; ns != "" {
		id += "/" + ns
	}
	if pod := alert.Labels["pod"]; pod != "" {
		id += "/" + pod
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
