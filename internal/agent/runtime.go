package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"incidentd/internal/graph"
	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// handoffPrefix namespaces the generated transfer tools.
const handoffPrefix = "transfer_to_"

// askUserDecl is the built-in suspension tool available to every agent.
var askUserDecl = &genai.FunctionDeclaration{
	Name:        "ask_user",
	Description: "Ask the human operator a clarifying question and wait for their answer. Use sparingly, only when the investigation cannot proceed without the information.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString, Description: "The question to ask the user."},
		},
		Required: []string{"question"},
	},
}

// GenAIRuntime runs agent turns against the Gemini API, walking handoffs
// along the session's graph.
type GenAIRuntime struct {
	client    *genai.Client
	model     string
	maxSteps  int
	team      map[string]*Definition
	graph     *graph.Graph
	authorize AuthorizeFunc
}

// NewGenAIRuntime creates a runtime over an existing genai client. The
// authorize callback may be nil, which permits every graph-legal handoff.
func NewGenAIRuntime(client *genai.Client, model string, maxSteps int, team []*Definition, g *graph.Graph, authorize AuthorizeFunc) (*GenAIRuntime, error) {
	if maxSteps <= 0 {
		maxSteps = 30
	}
	byName := make(map[string]*Definition, len(team))
	for _, d := range team {
		byName[d.Name] = d
	}
	for _, name := range g.Agents() {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("graph agent %q has no definition", name)
		}
	}
	return &GenAIRuntime{
		client:    client,
		model:     model,
		maxSteps:  maxSteps,
		team:      byName,
		graph:     g,
		authorize: authorize,
	}, nil
}

// NewClient builds a genai client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// resumeState is the position of a suspended turn: the active agent, the
// transcript so far, and the function call awaiting its response.
type resumeState struct {
	agent       string
	contents    []*genai.Content
	pendingCall *genai.FunctionCall
	steps       int
	trace       []TraceStep
}

// RunTurn runs one agent turn from a fresh transcript.
func (r *GenAIRuntime) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := req.Agent
	if start == "" {
		start = r.graph.Entry()
	}
	if _, ok := r.team[start]; !ok {
		return nil, fmt.Errorf("agent %q: no definition", start)
	}
	state := &resumeState{
		agent:    start,
		contents: []*genai.Content{genai.NewContentFromText(req.Input, genai.RoleUser)},
	}
	return r.loop(ctx, state)
}

// Resume continues a suspended turn with the user's answer. For a question
// suspension the answer feeds the ask_user call; for a selection
// suspension a non-empty answer names the agent to transfer to, and an
// empty answer declines the handoff.
func (r *GenAIRuntime) Resume(ctx context.Context, susp *Suspension, injected string) (*TurnResult, error) {
	if susp == nil || susp.state == nil {
		return nil, ErrNotSuspended
	}
	state := susp.state
	switch susp.Kind {
	case SuspendQuestion:
		state.contents = append(state.contents, functionResponse(state.pendingCall.Name, injected))
	case SuspendSelection:
		if injected == "" {
			state.contents = append(state.contents, functionResponse(state.pendingCall.Name,
				"The user declined the hand-off. Continue the investigation yourself without delegating."))
		} else {
			if err := r.graph.ValidateTransfer(state.agent, injected); err != nil {
				return nil, err
			}
			state.contents = append(state.contents, functionResponse(state.pendingCall.Name,
				fmt.Sprintf("Transferred to %s.", injected)))
			state.trace = append(state.trace, TraceStep{Agent: state.agent, Action: "handoff", Detail: injected})
			state.agent = injected
		}
	default:
		return nil, fmt.Errorf("suspension kind %q: %w", susp.Kind, ErrNotSuspended)
	}
	state.pendingCall = nil
	return r.loop(ctx, state)
}

// loop is the model/tool iteration shared by RunTurn and Resume.
func (r *GenAIRuntime) loop(ctx context.Context, state *resumeState) (*TurnResult, error) {
	for state.steps < r.maxSteps {
		state.steps++
		def := r.team[state.agent]

		resp, err := r.client.Models.GenerateContent(ctx, r.model, state.contents, r.turnConfig(def))
		if err != nil {
			return nil, fmt.Errorf("model call failed for %s: %w", state.agent, err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, fmt.Errorf("model returned no candidates for %s", state.agent)
		}
		state.contents = append(state.contents, resp.Candidates[0].Content)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return &TurnResult{FinalOutput: strings.TrimSpace(resp.Text()), Trace: state.trace}, nil
		}

		for _, call := range calls {
			result, err := r.dispatch(ctx, state, call)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		}
	}
	logging.AgentsError("agent %s exhausted %d steps", state.agent, r.maxSteps)
	return nil, fmt.Errorf("agent %s: %w", state.agent, ErrMaxStepsExceeded)
}

// dispatch handles one function call. A non-nil TurnResult means the turn
// suspended; a nil, nil return means the loop continues.
func (r *GenAIRuntime) dispatch(ctx context.Context, state *resumeState, call *genai.FunctionCall) (*TurnResult, error) {
	switch {
	case call.Name == "ask_user":
		question, _ := call.Args["question"].(string)
		state.pendingCall = call
		state.trace = append(state.trace, TraceStep{Agent: state.agent, Action: "suspend", Detail: question})
		logging.Agents("agent %s asks user: %s", state.agent, question)
		return &TurnResult{
			Suspended: &Suspension{Kind: SuspendQuestion, Question: question, state: state},
			Trace:     state.trace,
		}, nil

	case strings.HasPrefix(call.Name, handoffPrefix):
		return r.dispatchHandoff(state, call)

	default:
		def := r.team[state.agent]
		tool := def.tool(call.Name)
		if tool == nil {
			// Surface the mistake to the model instead of crashing the turn.
			err := fmt.Errorf("%w: %q is not available to %s", ErrUnknownTool, call.Name, state.agent)
			state.contents = append(state.contents, functionResponse(call.Name, "Error: "+err.Error()))
			logging.AgentsError("agent %s called unknown tool %s", state.agent, call.Name)
			return nil, nil
		}
		timer := logging.StartTimer(logging.CategoryAgents, state.agent+"."+call.Name)
		output, err := tool.Run(ctx, call.Args)
		timer.Stop()
		if err != nil {
			output = "Error: " + err.Error()
		}
		state.trace = append(state.trace, TraceStep{Agent: state.agent, Action: "tool", Detail: call.Name})
		state.contents = append(state.contents, functionResponse(call.Name, output))
		return nil, nil
	}
}

func (r *GenAIRuntime) dispatchHandoff(state *resumeState, call *genai.FunctionCall) (*TurnResult, error) {
	target := strings.TrimPrefix(call.Name, handoffPrefix)
	if err := r.graph.ValidateTransfer(state.agent, target); err != nil {
		state.contents = append(state.contents, functionResponse(call.Name, "Error: "+err.Error()))
		return nil, nil
	}

	if r.authorize != nil {
		allowed, selection := r.authorize(state.agent, target)
		if !allowed {
			if selection == nil {
				selection = &types.AgentSelectionRequest{
					FromAgent:       state.agent,
					SuggestedAgent:  target,
					AvailableAgents: r.graph.Targets(state.agent),
				}
			}
			state.pendingCall = call
			state.trace = append(state.trace, TraceStep{Agent: state.agent, Action: "suspend", Detail: "selection:" + target})
			logging.Agents("agent %s handoff to %s needs user selection", state.agent, target)
			return &TurnResult{
				Suspended: &Suspension{Kind: SuspendSelection, Selection: selection, state: state},
				Trace:     state.trace,
			}, nil
		}
	}

	state.contents = append(state.contents, functionResponse(call.Name, fmt.Sprintf("Transferred to %s.", target)))
	state.trace = append(state.trace, TraceStep{Agent: state.agent, Action: "handoff", Detail: target})
	logging.Agents("handoff %s -> %s", state.agent, target)
	state.agent = target
	return nil, nil
}

// turnConfig builds the generation config for the active agent: its system
// instructions plus declarations for its tools, ask_user, and one transfer
// tool per graph edge.
func (r *GenAIRuntime) turnConfig(def *Definition) *genai.GenerateContentConfig {
	decls := []*genai.FunctionDeclaration{askUserDecl}
	for _, t := range def.Tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	for _, target := range r.graph.Targets(def.Name) {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        handoffPrefix + target,
			Description: fmt.Sprintf("Hand the investigation off to %s.", target),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"instruction": {Type: genai.TypeString, Description: "What the target agent should do."},
				},
			},
		})
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(def.Instructions, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: decls}},
	}
}

func functionResponse(name, output string) *genai.Content {
	part := genai.NewPartFromFunctionResponse(name, map[string]any{"output": output})
	return genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser)
}
