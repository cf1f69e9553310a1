package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"google.golang.org/genai"

	"incidentd/internal/alertmanager"
	"incidentd/internal/blackboard"
	"incidentd/internal/logging"
	"incidentd/internal/provider"
	"incidentd/internal/router"
	"incidentd/internal/types"
)

// AlertSource fetches alerts for the session; satisfied by
// *alertmanager.Client.
type AlertSource interface {
	Fetch(ctx context.Context, filter alertmanager.StatusFilter, alertName string) ([]types.AlertRecord, error)
}

// Toolset builds the concrete tools agents use, bound to the session's
// blackboard, alert source, providers and router.
type Toolset struct {
	Board     *blackboard.Board
	Alerts    AlertSource
	Providers *provider.Registry
	Router    *router.Router
	Available []string // specialist names available for routing

	mu          sync.Mutex
	recommended map[string]bool // specialists named by the latest consult_router call
}

// ----- blackboard tools -----

// BlackboardTools returns the shared-context tools, recording findings
// under the given author name.
func (ts *Toolset) BlackboardTools(author string) []*Tool {
	update := &Tool{
		Name:        "update_shared_context",
		Description: "Record a finding on the shared investigation blackboard. Use a resource key like 'pod:api-1' or 'root_cause:alert-name' and a confidence between 0.0 and 1.0.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"resource_key": {Type: genai.TypeString, Description: "Resource key, conventionally 'type:identifier'."},
				"observation":  {Type: genai.TypeString, Description: "What was observed."},
				"confidence":   {Type: genai.TypeNumber, Description: "Confidence in [0.0, 1.0]."},
			},
			Required: []string{"resource_key", "observation", "confidence"},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			key, _ := args["resource_key"].(string)
			obs, _ := args["observation"].(string)
			conf, ok := args["confidence"].(float64)
			if !ok {
				return "", fmt.Errorf("confidence must be a number")
			}
			if err := ts.Board.Record(key, obs, conf, author); err != nil {
				return "", err
			}
			return fmt.Sprintf("Recorded finding for %s (confidence %.2f).", key, conf), nil
		},
	}

	get := &Tool{
		Name:        "get_shared_context",
		Description: "Read findings from the shared blackboard, optionally filtered by resource key and minimum confidence.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"filter_key":     {Type: genai.TypeString, Description: "Only findings whose key starts with or contains this."},
				"min_confidence": {Type: genai.TypeNumber, Description: "Minimum confidence, default 0."},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			filter, _ := args["filter_key"].(string)
			minConf, _ := args["min_confidence"].(float64)
			findings := ts.Board.Query(filter, minConf)
			if len(findings) == 0 {
				return "No matching findings.", nil
			}
			var sb strings.Builder
			for i, f := range findings {
				fmt.Fprintf(&sb, "%d. [%s] %s: %s (confidence: %.2f)\n",
					i+1, f.Author, f.ResourceKey, f.Observation, f.Confidence)
			}
			return sb.String(), nil
		},
	}

	return []*Tool{update, get}
}

// ----- alert tools -----

// AlertTools returns the alert-fetching tool.
func (ts *Toolset) AlertTools() []*Tool {
	fetch := &Tool{
		Name:        "fetch_alerts",
		Description: "Fetch alerts from Alertmanager. Status is 'firing', 'resolved' or 'all'; alertname optionally filters to one alert name.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"status":    {Type: genai.TypeString, Description: "firing, resolved or all. Default firing."},
				"alertname": {Type: genai.TypeString, Description: "Optional exact alert name filter."},
			},
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			status, _ := args["status"].(string)
			name, _ := args["alertname"].(string)
			alerts, err := ts.Alerts.Fetch(ctx, alertmanager.StatusFilter(status), name)
			if err != nil {
				return "", err
			}
			return alertmanager.FormatAlertList(alerts), nil
		},
	}
	return []*Tool{fetch}
}

// ----- router tools -----

// RouterTools returns the specialist recommendation tool. The orchestrator
// must consult it before delegating.
func (ts *Toolset) RouterTools() []*Tool {
	consult := &Tool{
		Name:        "consult_router",
		Description: "Get specialist recommendations for an alert. Always consult the router before handing off to a specialist.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"alert_text": {Type: genai.TypeString, Description: "The alert text or description to route."},
			},
			Required: []string{"alert_text"},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["alert_text"].(string)
			recs := ts.Router.Route(text, ts.Available)
			ts.recordRecommendations(recs)
			if len(recs) == 0 {
				return "No specialists available.", nil
			}
			var sb strings.Builder
			sb.WriteString("Recommended specialists:\n")
			for _, name := range sortedKeys(recs) {
				fmt.Fprintf(&sb, "- %s: %s\n", name, recs[name])
			}
			return sb.String(), nil
		},
	}
	return []*Tool{consult}
}

func (ts *Toolset) recordRecommendations(recs map[string]string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.recommended = make(map[string]bool, len(recs))
	for name := range recs {
		ts.recommended[name] = true
	}
}

// AuthorizeHandoff enforces the delegation policy: a handoff to a
// specialist is allowed only when the most recent consult_router call
// recommended that specialist. Handoffs to non-specialists (hand-backs to
// the orchestrator, escalation to a leader) are always allowed. A denied
// handoff returns a nil selection so the runtime builds the default one
// from the graph.
func (ts *Toolset) AuthorizeHandoff(from, to string) (bool, *types.AgentSelectionRequest) {
	if !ts.isSpecialist(to) {
		return true, nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.recommended[to] {
		return true, nil
	}
	logging.Agents("handoff %s -> %s not covered by router recommendations", from, to)
	return false, nil
}

func (ts *Toolset) isSpecialist(name string) bool {
	for _, s := range ts.Available {
		if s == name {
			return true
		}
	}
	return false
}

// ----- provider tools -----

// ProviderTools returns one catalog tool and one invocation tool per
// provider serving the domain. Invocation arguments are passed as a JSON
// object string, so no provider schema translation is needed.
func (ts *Toolset) ProviderTools(domain string) []*Tool {
	var tools []*Tool
	for _, client := range ts.Providers.ForDomain(domain) {
		c := client
		tools = append(tools,
			&Tool{
				Name:        "list_" + c.Name() + "_tools",
				Description: fmt.Sprintf("List the diagnostic tools exposed by the %s provider.", c.Name()),
				Parameters:  &genai.Schema{Type: genai.TypeObject},
				Run: func(ctx context.Context, _ map[string]any) (string, error) {
					infos, err := c.ListTools(ctx)
					if err != nil {
						return "", err
					}
					var sb strings.Builder
					for _, info := range infos {
						fmt.Fprintf(&sb, "- %s: %s\n", info.Name, info.Description)
					}
					if sb.Len() == 0 {
						return "No tools exposed.", nil
					}
					return sb.String(), nil
				},
			},
			&Tool{
				Name:        "query_" + c.Name(),
				Description: fmt.Sprintf("Invoke one diagnostic tool on the %s provider. Use list_%s_tools to discover tool names.", c.Name(), c.Name()),
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"tool":      {Type: genai.TypeString, Description: "Tool name to invoke."},
						"arguments": {Type: genai.TypeString, Description: "Tool arguments as a JSON object, e.g. {\"namespace\": \"prod\"}."},
					},
					Required: []string{"tool"},
				},
				Run: func(ctx context.Context, args map[string]any) (string, error) {
					tool, _ := args["tool"].(string)
					rawArgs, _ := args["arguments"].(string)
					callArgs := map[string]interface{}{}
					if strings.TrimSpace(rawArgs) != "" {
						if err := json.Unmarshal([]byte(rawArgs), &callArgs); err != nil {
							return "", fmt.Errorf("arguments must be a JSON object: %w", err)
						}
					}
					logging.ProvidersDebug("agent invokes %s.%s", c.Name(), tool)
					return c.CallTool(ctx, tool, callArgs)
				},
			},
		)
	}
	return tools
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
