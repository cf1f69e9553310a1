package agent

import (
	"fmt"
	"strings"

	"incidentd/internal/alertmanager"
	"incidentd/internal/types"
)

// Specialist names used by the default topology.
const (
	OrchestratorName     = "InvestigationAgent"
	ComputeSpecialist    = "ComputeSpecialist"
	StorageSpecialist    = "StorageSpecialist"
	NetworkSpecialist    = "NetworkSpecialist"
	MultiAlertLeaderName = "MultiAlertLeader"
)

// DefaultSpecialists lists the standard specialist roster.
var DefaultSpecialists = []string{ComputeSpecialist, StorageSpecialist, NetworkSpecialist}

const orchestratorInstructions = `You are InvestigationAgent, the lead investigator for infrastructure
incidents. You coordinate a team of domain specialists.

Workflow for each user request:
1. Use fetch_alerts to see what is firing when the user asks about alerts.
2. Before delegating any alert, use consult_router to get specialist
   recommendations. Only hand off to recommended specialists.
3. Use get_shared_context to review what specialists have already found,
   and update_shared_context to record your own conclusions with an honest
   confidence score.
4. When the investigation cannot proceed without information only the
   human has (environment, change history, expected behavior), use
   ask_user.
5. Summarize findings for the user in clear, concise language. You alone
   author the final assessment for the user.

Never fabricate tool output. If a specialist reports low confidence, say
so rather than overstating certainty.`

const specialistInstructionsTemplate = `You are %s, the %s domain expert on an infrastructure
incident investigation team.

Workflow:
1. First use get_shared_context to check what other investigators have
   already found about the affected resources.
2. Investigate using your diagnostic tools (%s).
3. Record every significant observation with update_shared_context, using
   resource keys like 'pod:name' or 'node:name' and an honest confidence
   between 0.0 and 1.0.
4. When your part is done, hand back to InvestigationAgent with a short
   summary of what you found and how confident you are.

Stay inside the %s domain. If the evidence points at another domain, say
so in your summary instead of investigating it yourself.`

// specialistDomains maps specialist name to its domain keyword.
var specialistDomains = map[string]string{
	ComputeSpecialist: "compute",
	StorageSpecialist: "storage",
	NetworkSpecialist: "network",
}

// NewTeam builds the default conversational team: the orchestrator plus
// the three domain specialists, with tools bound to the toolset.
func NewTeam(ts *Toolset) []*Definition {
	team := []*Definition{newOrchestrator(ts)}
	for _, name := range DefaultSpecialists {
		team = append(team, newSpecialist(name, ts))
	}
	return team
}

func newOrchestrator(ts *Toolset) *Definition {
	tools := ts.BlackboardTools(OrchestratorName)
	tools = append(tools, ts.AlertTools()...)
	tools = append(tools, ts.RouterTools()...)
	return &Definition{
		Name:         OrchestratorName,
		Instructions: orchestratorInstructions,
		Tools:        tools,
	}
}

func newSpecialist(name string, ts *Toolset) *Definition {
	domain := specialistDomains[name]
	providerTools := ts.ProviderTools(domain)
	providerDesc := "none configured"
	if len(providerTools) > 0 {
		var names []string
		for _, t := range providerTools {
			if strings.HasPrefix(t.Name, "query_") {
				names = append(names, strings.TrimPrefix(t.Name, "query_"))
			}
		}
		providerDesc = strings.Join(names, ", ")
	}

	tools := ts.BlackboardTools(name)
	tools = append(tools, providerTools...)
	return &Definition{
		Name:         name,
		Instructions: fmt.Sprintf(specialistInstructionsTemplate, name, domain, providerDesc, domain),
		Tools:        tools,
	}
}

// ----- per-alert investigator -----

const investigatorInstructionsTemplate = `You are %s, investigating exactly one alert as part of a
multi-alert correlation round. You own this alert and no other.

Your alert:
%s

%sWorkflow:
1. Check get_shared_context for findings other investigators recorded
   about resources related to your alert.
2. Investigate with your diagnostic tools.
3. Record observations with update_shared_context.
4. Finish by returning ONLY a JSON object of this exact shape:

{
  "root_cause_assessment": "<one or two sentences>",
  "affected_layers": ["compute" | "storage" | "network" | "infrastructure" | "application"],
  "affected_resources": ["<type:name>", ...],
  "scope": "<namespace or region>",
  "confidence": <0.0 - 1.0>
}

Do not wrap the JSON in prose.`

// NewInvestigator builds a single-alert investigator definition. Each
// alert in a correlation round gets its own investigator with the alert
// embedded in its instructions; roundContext carries the previous round's
// screening results, empty on round one.
func NewInvestigator(alert types.AlertRecord, round int, roundContext string, ts *Toolset) *Definition {
	name := investigatorName(alert)
	context := ""
	if roundContext != "" {
		context = fmt.Sprintf("Context from round %d screening:\n%s\n\n", round-1, roundContext)
	}

	// Route the alert once to pick the provider domains this investigator
	// gets tools for.
	alertText := alertmanager.FormatAlertSummary(alert)
	domains := map[string]bool{}
	for specialist := range ts.Router.Route(alertText, DefaultSpecialists) {
		domains[specialistDomains[specialist]] = true
	}

	tools := ts.BlackboardTools(name)
	seen := map[string]bool{}
	for domain := range domains {
		for _, t := range ts.ProviderTools(domain) {
			if !seen[t.Name] {
				tools = append(tools, t)
				seen[t.Name] = true
			}
		}
	}

	return &Definition{
		Name:         name,
		Instructions: fmt.Sprintf(investigatorInstructionsTemplate, name, alertText, context),
		Tools:        tools,
	}
}

func investigatorName(alert types.AlertRecord) string {
	suffix := alert.Fingerprint
	if suffix == "" {
		suffix = alert.AlertName
	}
	return "Investigator-" + suffix
}

// ----- multi-alert leader -----

const leaderInstructions = `You are MultiAlertLeader, responsible for synthesizing a multi-alert
investigation into one final report. You are the only agent allowed to
author the final report.

You receive per-alert assessments, temporal patterns, shared
infrastructure groups and cascade hypotheses. Produce a report that:
1. States the most likely root cause (or causes) across all alerts.
2. Explains which alerts are symptoms of the same underlying failure.
3. Lists concrete remediation steps in priority order.
4. States your overall confidence and what evidence would raise it.

Use get_shared_context to pull supporting findings. Be direct about
uncertainty; never invent evidence.`

// NewLeader builds the multi-alert report synthesizer.
func NewLeader(ts *Toolset) *Definition {
	return &Definition{
		Name:         MultiAlertLeaderName,
		Instructions: leaderInstructions,
		Tools:        ts.BlackboardTools(MultiAlertLeaderName),
	}
}
