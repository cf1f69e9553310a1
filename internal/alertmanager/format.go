package alertmanager

import (
	"fmt"
	"strings"

	"incidentd/internal/types"
)

// interestingLabels are rendered, in order, when formatting an alert.
var interestingLabels = []string{
	"node", "namespace", "pod", "deployment", "statefulset", "daemonset", "job", "instance",
}

// FormatAlertList renders alerts as a numbered list suitable for agent
// prompts and chat output.
func FormatAlertList(alerts []types.AlertRecord) string {
	if len(alerts) == 0 {
		return "No alerts found."
	}
	var sb strings.Builder
	for i, a := range alerts {
		fmt.Fprintf(&sb, "%d. %s", i+1, FormatAlertSummary(a))
		if i < len(alerts)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatAlertSummary renders one alert as a single line: name, status, the
// interesting labels that are present, and the summary annotation.
func FormatAlertSummary(a types.AlertRecord) string {
	var sb strings.Builder
	name := a.AlertName
	if name == "" {
		name = "(unnamed alert)"
	}
	fmt.Fprintf(&sb, "%s [%s]", name, a.Status)

	var labelParts []string
	for _, key := range interestingLabels {
		if v := a.Labels[key]; v != "" {
			labelParts = append(labelParts, key+"="+v)
		}
	}
	if len(labelParts) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(labelParts, ", "))
	}
	if summary := a.Annotations["summary"]; summary != "" {
		fmt.Fprintf(&sb, " - %s", summary)
	}
	if !a.StartsAt.IsZero() {
		fmt.Fprintf(&sb, " [since %s]", a.StartsAt.Format("2006-01-02 15:04:05"))
	}
	return sb.String()
}

// ExtractResourceInfo derives the primary resource key and scope from an
// alert's labels. The resource is the most specific identity label present
// (pod first, alertname as last resort); the scope is the namespace,
// project or region.
func ExtractResourceInfo(a types.AlertRecord) (resource, scope string) {
	for _, key := range []string{"pod", "instance", "node", "service", "deployment", "statefulset", "daemonset", "job"} {
		if v := a.Labels[key]; v != "" {
			resource = key + ":" + v
			break
		}
	}
	if resource == "" && a.AlertName != "" {
		resource = "alert:" + a.AlertName
	}

	for _, key := range []string{"namespace", "project", "region"} {
		if v := a.Labels[key]; v != "" {
			scope = v
			break
		}
	}
	return resource, scope
}
