package blackboard

import (
	"fmt"
	"sort"
	"strings"

	"incidentd/internal/types"
)

// ----- markdown report -----

// Report renders the board as a Markdown findings report grouped by
// confidence band and by resource type. When includeRecommendations is set
// the top findings are repeated as a short recommendation list.
func (b *Board) Report(title string, includeRecommendations bool) string {
	findings := b.Findings()
	groups := b.Groups()

	var sb strings.Builder
	if title == "" {
		title = "Investigation Findings Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	if len(findings) == 0 {
		sb.WriteString("No findings were recorded during this investigation.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Total findings: %d\n\n", len(findings))

	high, medium, low := bandFindings(findings)
	writeBand(&sb, "High Confidence (>= 0.80)", high)
	writeBand(&sb, "Medium Confidence (0.50 - 0.79)", medium)
	writeBand(&sb, "Low Confidence (< 0.50)", low)

	writeByResourceType(&sb, findings)

	if len(groups) > 0 {
		sb.WriteString("## Correlated Groups\n\n")
		for _, g := range groups {
			fmt.Fprintf(&sb, "- **%s** (%d findings, by %s)", g.Name, len(g.Members), g.Author)
			if g.Analysis != "" {
				fmt.Fprintf(&sb, ": %s", g.Analysis)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if includeRecommendations && len(high) > 0 {
		sb.WriteString("## Recommendations\n\n")
		top := high
		if len(top) > 5 {
			top = top[:5]
		}
		for _, f := range top {
			fmt.Fprintf(&sb, "- Address `%s`: %s\n", f.ResourceKey, f.Observation)
		}
	}
	return sb.String()
}

func bandFindings(findings []types.Finding) (high, medium, low []types.Finding) {
	for _, f := range findings {
		switch {
		case f.Confidence >= 0.8:
			high = append(high, f)
		case f.Confidence >= 0.5:
			medium = append(medium, f)
		default:
			low = append(low, f)
		}
	}
	sort.SliceStable(high, func(i, j int) bool { return high[i].Confidence > high[j].Confidence })
	sort.SliceStable(medium, func(i, j int) bool { return medium[i].Confidence > medium[j].Confidence })
	sort.SliceStable(low, func(i, j int) bool { return low[i].Confidence > low[j].Confidence })
	return high, medium, low
}

func writeBand(sb *strings.Builder, heading string, findings []types.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", heading)
	for _, f := range findings {
		fmt.Fprintf(sb, "- `%s`: %s _(%.2f, %s)_\n", f.ResourceKey, f.Observation, f.Confidence, f.Author)
	}
	sb.WriteString("\n")
}

// resourceType is the conventional prefix before the first ":" in a
// resource key, or "other" when the key has no prefix.
func resourceType(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return "other"
}

func writeByResourceType(sb *strings.Builder, findings []types.Finding) {
	byType := map[string][]types.Finding{}
	for _, f := range findings {
		t := resourceType(f.ResourceKey)
		byType[t] = append(byType[t], f)
	}
	typeNames := make([]string, 0, len(byType))
	for t := range byType {
		typeNames = append(typeNames, t)
	}
	sort.Strings(typeNames)

	sb.WriteString("## Findings by Resource Type\n\n")
	for _, t := range typeNames {
		fmt.Fprintf(sb, "### %s\n\n", t)
		for _, f := range byType[t] {
			fmt.Fprintf(sb, "- `%s`: %s _(%.2f)_\n", f.ResourceKey, f.Observation, f.Confidence)
		}
		sb.WriteString("\n")
	}
}

// ContextView renders the findings matching filterKey the way agents see
// shared context: banded by confidence with high-confidence findings first.
func (b *Board) ContextView(filterKey string) string {
	findings := b.Query(filterKey, 0.0)
	if len(findings) == 0 {
		if filterKey == "" {
			return "No findings recorded yet."
		}
		return fmt.Sprintf("No findings recorded for %q yet.", filterKey)
	}

	high, medium, low := bandFindings(findings)
	var sb strings.Builder
	writeContextBand(&sb, "High confidence", high)
	writeContextBand(&sb, "Medium confidence", medium)
	writeContextBand(&sb, "Low confidence", low)
	return strings.TrimRight(sb.String(), "\n")
}

func writeContextBand(sb *strings.Builder, label string, findings []types.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, f := range findings {
		fmt.Fprintf(sb, "  [%s] %s: %s (confidence: %.2f)\n", f.Author, f.ResourceKey, f.Observation, f.Confidence)
	}
}
